package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API groups the resource handlers mounted under /api/v1.
type API struct {
	Users    *UserHandler
	Tweets   *TweetHandler
	Chats    *ChatHandler
	Messages *MessageHandler
}

// Mount registers the resource routes on r. gate is the session gate
// applied to every route that needs a principal.
//
// Example:
//
//	r.Route("/api/v1", func(r chi.Router) {
//	    api.Mount(r, middleware.RequireSession(authenticator, cfg.Session.CookieName))
//	})
func (a *API) Mount(r chi.Router, gate func(http.Handler) http.Handler) {
	r.Route("/users", func(r chi.Router) {
		// Public endpoints
		r.Get("/", a.Users.List)
		r.Post("/signup", a.Users.Signup)
		r.Post("/login", a.Users.Login)
		r.Post("/logout", a.Users.Logout)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Get("/me", a.Users.Me)
			r.Delete("/me", a.Users.DeleteMe)
			r.Patch("/me/password", a.Users.ChangePassword)
			r.Get("/me/sessions", a.Users.ListSessions)
			r.Delete("/me/sessions/{id}", a.Users.RevokeSession)
			r.Post("/me/sessions/revoke-others", a.Users.RevokeOtherSessions)
			r.Get("/me/tweets", a.Users.MyTweets)
		})

		r.Get("/{username}", a.Users.Profile)
	})

	r.Route("/tweets", func(r chi.Router) {
		r.Use(gate)
		r.Get("/", a.Tweets.List)
		r.Post("/", a.Tweets.Create)
		r.Post("/retweet", a.Tweets.Retweet)
		r.Get("/{id}", a.Tweets.Get)
		r.Patch("/{id}", a.Tweets.Update)
		r.Delete("/{id}", a.Tweets.Delete)
		r.Patch("/{id}/like", a.Tweets.Like)
		r.Patch("/{id}/unlike", a.Tweets.Unlike)
	})

	r.Route("/chats", func(r chi.Router) {
		r.Use(gate)
		r.Get("/", a.Chats.List)
		r.Get("/{recipient}/recipient", a.Chats.WithRecipient)
		r.Delete("/{id}", a.Chats.Delete)
	})

	r.Route("/msgs", func(r chi.Router) {
		r.Use(gate)
		r.Get("/{chat}/chat", a.Messages.ListForChat)
		r.Post("/{chat}/msg", a.Messages.Send)
		r.Delete("/{id}", a.Messages.Delete)
	})
}
