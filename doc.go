// Project Structure Overview
/*
digistore/
├── cmd/
│   ├── server/          HTTP service (webhook + operator API)
│   └── webhookctl/      sign, send, token and migrate commands
├── internal/
│   ├── config/          environment configuration and validation
│   ├── database/        connection, migrations, transaction helper
│   ├── models/          gorm models
│   ├── services/
│   │   ├── signature_service.go       webhook HMAC validation
│   │   ├── gateway_client.go          payment status lookup
│   │   ├── reconciliation_service.go  gateway status -> local outcome
│   │   ├── order_state.go             order/transaction transitions
│   │   ├── fulfillment_service.go     at-most-once order fulfillment
│   │   ├── stock_allocator.go         LINE, FIXED and KEYAUTH strategies
│   │   ├── storage_service.go         deliverable download URLs
│   │   ├── notification_service.go    seller alerts
│   │   └── webhook_service.go         payment pipeline and delivery audit
│   ├── handlers/        gin handlers
│   ├── middleware/      auth, logging, no-cache, rate limiting
│   ├── router/          route and service wiring
│   ├── testutil/        sqlite database and fixtures for tests
│   └── utils/           responses, jwt, validation, pagination, hashing
└── go.mod
*/

// Package digistore receives payment gateway webhooks, reconciles them
// against the gateway and fulfills paid orders of digital goods.
package digistore
