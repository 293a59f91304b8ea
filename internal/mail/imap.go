package mail

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

// imapClient is the slice of imapclient.Client the scanner uses. Tests swap
// in a fake; production wraps the real client.
type imapClient interface {
	Login(username, password string) commandWaiter
	Authenticate(saslClient sasl.Client) error
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

func dialIMAP(host string, port int, dialTimeout time.Duration) (imapClient, error) {
	if host == "" {
		return nil, errors.New("imap account missing host")
	}
	if port == 0 {
		port = 993
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: dialTimeout}}
	client, err := imapclient.DialTLS(fmt.Sprintf("%s:%d", host, port), opts)
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

// VerifyLogin dials the IMAP server and attempts a password login, so bad
// credentials are rejected at registration time instead of on the first sweep.
func VerifyLogin(host string, port int, user, password string, dialTimeout time.Duration) error {
	client, err := dialIMAP(host, port, dialTimeout)
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer client.Close()
	if err := client.Login(user, password).Wait(); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if err := client.Logout().Wait(); err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

// xoauth2Client is the SASL XOAUTH2 mechanism Gmail expects; go-sasl does not
// ship one.
type xoauth2Client struct {
	username    string
	accessToken string
}

func newXOAuth2Client(username, accessToken string) sasl.Client {
	return &xoauth2Client{username: username, accessToken: accessToken}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.username, c.accessToken)
	return "XOAUTH2", []byte(resp), nil
}

// Next only fires on rejection: the server sends a base64 JSON error blob and
// expects an empty line back before issuing the tagged NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
