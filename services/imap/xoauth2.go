package imap

import (
	"github.com/emersion/go-sasl"
)

// xoauth2Client implements the XOAUTH2 SASL mechanism used by Gmail and
// Outlook. The initial response carries the whole exchange; a server
// challenge only ever delivers error detail, to which the client answers
// with an empty response so the tagged NO can follow.
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client builds a sasl.Client for AUTHENTICATE XOAUTH2.
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
