// Package proto holds the gRPC contract of the auth service and the code
// generated from it.
package proto

//go:generate protoc -I ../.. --go_out=../.. --go_opt=paths=source_relative --go-grpc_out=../.. --go-grpc_opt=paths=source_relative internal/proto/auth.proto
