package clint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPage_ClampsAndSendsToken(t *testing.T) {
	var gotPage, gotPerPage, gotToken, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		gotPerPage = r.URL.Query().Get("per_page")
		gotToken = r.Header.Get("api-token")
		_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":"2"}],"meta":{"page":1,"per_page":200,"total":9999}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, WithToken("tok"))
	page, err := c.FetchPage(context.Background(), ResourceOrigins, 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, "/origins", gotPath)
	assert.Equal(t, "1", gotPage)
	assert.Equal(t, "200", gotPerPage)
	assert.Equal(t, "tok", gotToken)
	assert.Len(t, page.Data, 2)
	require.NotNil(t, page.Meta)
	assert.Equal(t, 9999, page.Meta.Total)
}

func TestFetchPage_AuthorizationHeaderUsesBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, WithToken("tok"), WithAuthHeader("Authorization"))
	page, err := c.FetchPage(context.Background(), ResourceDeals, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got)
	assert.Empty(t, page.Data)
	assert.Nil(t, page.Meta)
}

func TestFetchPage_NonSuccessReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.ListContacts(context.Background(), 1, 50)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "slow down", apiErr.Body)
}

func TestListDeals_DecodesAndSkipsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":"d-1","title":"Big","value":"1500.50","stage_id":10,"contact":{"id":"c-1","name":"Ana","email":"ANA@x.io"}},
			{"id":"d-2","name":"Small","status":"won","value":99.9,"currency":"usd","user":{"email":"rep@x.io"},"tags":[{"name":"vip"}],"won_at":"2024-03-01 10:00:00"},
			{"id":"d-3","value":{"bad":true}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	page, err := c.ListDeals(context.Background(), 1, 200)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 1, page.Invalid)
	assert.Equal(t, 3, page.Len())

	first := page.Data[0]
	assert.Equal(t, FlexID("d-1"), first.ID)
	assert.Equal(t, "OPEN", first.Status)
	assert.Equal(t, "BRL", first.Currency)
	assert.Equal(t, "1500.5", first.Value.String())
	assert.Equal(t, FlexID("10"), first.StageID)
	assert.Equal(t, FlexID("c-1"), first.ContactID)
	require.NotNil(t, first.Contact)
	assert.Equal(t, "ana@x.io", first.Contact.Email)
	assert.Equal(t, Tags{}, first.Tags)
	assert.JSONEq(t, `{}`, string(first.Fields))
	assert.NotEmpty(t, first.Raw)

	second := page.Data[1]
	assert.Equal(t, "Small", second.Title)
	assert.Equal(t, "WON", second.Status)
	assert.Equal(t, "USD", second.Currency)
	assert.Equal(t, "rep@x.io", second.UserEmail)
	assert.Equal(t, Tags{"vip"}, second.Tags)
	require.NotNil(t, second.WonAt.Ptr())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), *second.WonAt.Ptr())
	assert.Nil(t, second.LostAt.Ptr())
}

func TestTimestamp_Layouts(t *testing.T) {
	cases := map[string]time.Time{
		`"2024-01-02T03:04:05Z"`: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		`"2024-01-02 03:04:05"`:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		`"2024-01-02"`:           time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		`""`:                     {},
		`null`:                   {},
	}
	for in, want := range cases {
		var ts Timestamp
		if err := ts.UnmarshalJSON([]byte(in)); err != nil {
			t.Fatalf("in=%s err=%v", in, err)
		}
		if !ts.Time.Equal(want) {
			t.Fatalf("in=%s got=%v want=%v", in, ts.Time, want)
		}
	}
}

func TestNormalizePerPage(t *testing.T) {
	cases := map[int]int{-1: 1, 0: 1, 1: 1, 200: 200, 201: 200}
	for in, want := range cases {
		if got := NormalizePerPage(in); got != want {
			t.Fatalf("in=%d got=%d want=%d", in, got, want)
		}
	}
}
