package main

// General API documentation for swaggo. Regenerate internal/httpapi/docs with
// `swag init -g cmd/inferd/docs.go -o internal/httpapi/docs`.
//
// @title           inferd API
// @version         1.0
// @description     Operator API for the chat-driven local inference service.
//
// @BasePath  /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
//
// @schemes http
