package main

//go:generate swag init -g cmd/crmsync/main.go -o docs

// @title           CRM Sync API
// @version         0.1.0
// @description     Incremental, resumable mirroring of Clint CRM origins, stages, contacts and deals.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
