// Package common contains shared constants and sentinel errors used across
// authcore components.
package common

// AuthorizationHeaderName carries the bearer access token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// InvalidCredentialsMessage is the single message returned for both an unknown
// email and a wrong password.
const InvalidCredentialsMessage = "Email or password is wrong!"
