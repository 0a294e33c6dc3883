package common

// AccessTokenHeaderName is the gRPC metadata key that carries the bearer
// access token on inbound requests.
const AccessTokenHeaderName = "authorization"

// BearerScheme prefixes the access token in AccessTokenHeaderName.
const BearerScheme = "Bearer "
