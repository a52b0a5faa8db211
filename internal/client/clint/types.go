package clint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultDealStatus = "OPEN"
	DefaultCurrency   = "BRL"
)

// FlexID accepts a JSON string or number and keeps it as a trimmed string.
type FlexID string

func (id *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

func (id FlexID) String() string { return string(id) }

func (id FlexID) Ptr() *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}

// Amount is a money value sent either as a number or a decimal string.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			a.Decimal = decimal.Zero
			return nil
		}
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("amount %q: %w", raw, err)
	}
	a.Decimal = d
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp is an optional remote time. Zero means absent.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = time.Unix(n, 0).UTC()
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.Unix(n, 0).UTC()
		return nil
	}
	return fmt.Errorf("timestamp %q: unsupported format", s)
}

func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// Tags accepts ["a","b"] or [{"name":"a"}].
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Tags{}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	out := make(Tags, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &named); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		if n := strings.TrimSpace(named.Name); n != "" {
			out = append(out, n)
		}
	}
	*t = out
	return nil
}

func (t Tags) JSON() []byte {
	if t == nil {
		t = Tags{}
	}
	b, _ := json.Marshal([]string(t))
	return b
}

func fieldsOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] != '{' {
		return json.RawMessage("{}")
	}
	return append(json.RawMessage(nil), trimmed...)
}

type Origin struct {
	ID        FlexID `json:"id"`
	Name      string `json:"name"`
	GroupName string `json:"group_name"`
	Group     *struct {
		Name string `json:"name"`
	} `json:"group,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (o *Origin) UnmarshalJSON(b []byte) error {
	type alias Origin
	var v alias
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Origin(v)
	if o.GroupName == "" && o.Group != nil {
		o.GroupName = o.Group.Name
	}
	o.Name = strings.TrimSpace(o.Name)
	o.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type Stage struct {
	ID       FlexID `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Order    *int   `json:"order,omitempty"`
	OriginID FlexID `json:"origin_id"`

	Raw json.RawMessage `json:"-"`
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	type alias Stage
	var v alias
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Stage(v)
	if s.Position == 0 && s.Order != nil {
		s.Position = *s.Order
	}
	s.Name = strings.TrimSpace(s.Name)
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type Contact struct {
	ID        FlexID          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Tags      Tags            `json:"tags"`
	Fields    json.RawMessage `json:"fields"`
	CreatedAt Timestamp       `json:"created_at"`
	UpdatedAt Timestamp       `json:"updated_at"`

	Raw json.RawMessage `json:"-"`
}

func (c *Contact) UnmarshalJSON(b []byte) error {
	type alias Contact
	var v alias
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Contact(v)
	c.applyDefaults()
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (c *Contact) applyDefaults() {
	if c.Tags == nil {
		c.Tags = Tags{}
	}
	c.Fields = fieldsOrEmpty(c.Fields)
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
}

type DealUser struct {
	Email string `json:"email"`
}

type Deal struct {
	ID         FlexID          `json:"id"`
	Title      string          `json:"title"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Value      Amount          `json:"value"`
	Currency   string          `json:"currency"`
	UserEmail  string          `json:"user_email"`
	User       *DealUser       `json:"user,omitempty"`
	Tags       Tags            `json:"tags"`
	Fields     json.RawMessage `json:"fields"`
	StageID    FlexID          `json:"stage_id"`
	OriginID   FlexID          `json:"origin_id"`
	ContactID  FlexID          `json:"contact_id"`
	Contact    *Contact        `json:"contact,omitempty"`
	WonAt      Timestamp       `json:"won_at"`
	LostAt     Timestamp       `json:"lost_at"`
	LostReason string          `json:"lost_reason"`
	CreatedAt  Timestamp       `json:"created_at"`
	UpdatedAt  Timestamp       `json:"updated_at"`

	Raw json.RawMessage `json:"-"`
}

func (d *Deal) UnmarshalJSON(b []byte) error {
	type alias Deal
	var v alias
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = Deal(v)
	d.applyDefaults()
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (d *Deal) applyDefaults() {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		d.Title = strings.TrimSpace(d.Name)
	}
	d.Status = strings.ToUpper(strings.TrimSpace(d.Status))
	if d.Status == "" {
		d.Status = DefaultDealStatus
	}
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	if d.UserEmail == "" && d.User != nil {
		d.UserEmail = d.User.Email
	}
	d.UserEmail = strings.ToLower(strings.TrimSpace(d.UserEmail))
	if d.Tags == nil {
		d.Tags = Tags{}
	}
	d.Fields = fieldsOrEmpty(d.Fields)
	if d.ContactID == "" && d.Contact != nil {
		d.ContactID = d.Contact.ID
	}
	d.LostReason = strings.TrimSpace(d.LostReason)
}
