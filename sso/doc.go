// Package sso validates signed single-sign-on tokens minted by the CRM.
//
// Tokens are compact HS256 JWTs carrying the user-identifying claims the
// platform needs to resolve a principal. Validation is a single pass over the
// token and every failure collapses into one uniform credentials error, so a
// caller probing the endpoint learns nothing about which check rejected it.
package sso
