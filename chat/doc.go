// Package chat mirrors translations into Twitch chat.
//
// A Mirror is an overlay sink that posts each new English line to the
// configured channel through go-twitch-irc, throttled to MinInterval so a
// fast scene never trips Twitch's rate limits. Clears are not mirrored.
//
// The same IRC connection accepts moderator commands of the form
// "!translate <name>" (e.g. "!translate force"), dispatched to the handlers
// registered with Handle. Only the broadcaster and moderators may run them.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes (TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN).
package chat
