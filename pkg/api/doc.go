// Package api implements the BotDeck HTTP surface: access resolution,
// assignment lifecycle, and invitation management endpoints.
//
// Every protected endpoint re-derives the caller's role and accessible-bot
// set on the request it serves. Nothing authorization-related is read from
// a cache or a client-supplied claim.
package api
