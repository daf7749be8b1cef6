// Package remote talks to the notes REST service.
//
// The service's sub-note routes are not spelled consistently across
// deployments (prefix and path parameter names vary), so every call walks an
// ordered list of equivalent candidate URLs until one answers 2xx. Callers
// only ever see a tagged Result; routing never leaks past this package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"enotebook-sync/internal/domain"
)

const maxBodyBytes = 4 << 20

// TokenSource yields the bearer credential, or "" when none is held.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type Client struct {
	baseURL    string
	healthPath string
	http       *http.Client
	routes     *Routes
	tokens     TokenSource
	logger     *log.Logger
	debug      bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRoutes(r *Routes) Option {
	return func(c *Client) { c.routes = r }
}

func WithHealthPath(p string) Option {
	return func(c *Client) { c.healthPath = p }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDebug logs every candidate attempt.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: "/api/health",
		http:       &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		logger:     log.New(os.Stderr, "[Remote] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.routes == nil {
		c.routes = NewRoutes()
	}
	if c.tokens == nil {
		c.tokens = StaticToken("")
	}
	return c
}

func (c *Client) Routes() *Routes { return c.routes }

// Perform executes one sub-note mutation. payload is ignored for deletes.
func (c *Client) Perform(ctx context.Context, op domain.OpKind, noteID, subNoteID string, payload *domain.SubNotePatch) Result {
	var (
		kind   routeKind
		method string
	)
	switch op {
	case domain.OpCreate:
		kind, method = routeSubNotes, http.MethodPost
	case domain.OpUpdate:
		kind, method = routeSubNoteItem, http.MethodPut
	case domain.OpDelete:
		kind, method = routeSubNoteItem, http.MethodDelete
	default:
		return failed(&Failure{Kind: KindRejection, Op: string(op), Attempts: []Attempt{{Err: fmt.Errorf("unknown operation %q", op)}}})
	}
	opName := string(op) + " sub-note"

	cands, err := c.routes.candidates(kind, noteID, subNoteID)
	if err != nil {
		return failed(&Failure{Kind: KindRejection, Op: opName, Attempts: []Attempt{{Method: method, Status: http.StatusBadRequest, Body: err.Error()}}})
	}

	var body []byte
	if op != domain.OpDelete && payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return failed(&Failure{Kind: KindRejection, Op: opName, Attempts: []Attempt{{Method: method, Err: err}}})
		}
	}

	respBody, f := c.walk(ctx, opName, method, cands, body, true)
	if f != nil {
		return failed(f)
	}

	res := Result{Kind: KindSuccess}
	ent, err := decodeEntity(respBody)
	if err != nil && err != errEmptyBody {
		c.logger.Printf("%s: undecodable success body: %v", opName, err)
	}
	res.Note = ent.note
	switch op {
	case domain.OpCreate:
		res.SubNote = ent.created()
	case domain.OpUpdate:
		res.SubNote = ent.find(subNoteID)
	}
	return res
}

func (c *Client) ListNotes(ctx context.Context) ([]domain.Note, error) {
	cands, err := c.routes.candidates(routeNotes, "", "")
	if err != nil {
		return nil, err
	}
	body, f := c.walk(ctx, "list notes", http.MethodGet, cands, nil, false)
	if f != nil {
		return nil, f
	}
	return decodeNotes(body)
}

func (c *Client) CreateNote(ctx context.Context, req domain.CreateNoteRequest) (*domain.Note, error) {
	cands, err := c.routes.candidates(routeNotes, "", "")
	if err != nil {
		return nil, err
	}
	return c.noteMutation(ctx, "create note", http.MethodPost, cands, req)
}

func (c *Client) UpdateNote(ctx context.Context, noteID string, req domain.UpdateNoteRequest) (*domain.Note, error) {
	cands, err := c.routes.candidates(routeNote, noteID, "")
	if err != nil {
		return nil, err
	}
	return c.noteMutation(ctx, "update note", http.MethodPut, cands, req)
}

func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	cands, err := c.routes.candidates(routeNote, noteID, "")
	if err != nil {
		return err
	}
	_, f := c.walk(ctx, "delete note", http.MethodDelete, cands, nil, true)
	if f != nil {
		return f
	}
	return nil
}

func (c *Client) noteMutation(ctx context.Context, op, method string, cands []candidate, req interface{}) (*domain.Note, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	respBody, f := c.walk(ctx, op, method, cands, body, true)
	if f != nil {
		return nil, f
	}
	ent, err := decodeEntity(respBody)
	if err != nil {
		return nil, err
	}
	if ent.note == nil {
		return nil, fmt.Errorf("%s: response carried no note", op)
	}
	return ent.note, nil
}

// walk tries candidates in order and returns the first 2xx body. A transport
// error always ends the walk; for mutations so does any connectivity-class
// status, since the remote may already have applied the change.
func (c *Client) walk(ctx context.Context, op, method string, cands []candidate, body []byte, mutation bool) ([]byte, *Failure) {
	attempts := make([]Attempt, 0, len(cands))
	for _, cand := range cands {
		a, respBody := c.do(ctx, method, cand, body)
		attempts = append(attempts, a)
		if c.debug {
			c.logger.Printf("%s %s -> status=%d err=%v", a.Method, a.URL, a.Status, a.Err)
		}

		switch a.class() {
		case classSuccess:
			c.routes.Prefer(cand.family)
			return respBody, nil
		case classConnectivity:
			if a.Err != nil || mutation {
				return nil, classify(op, attempts)
			}
		}
	}
	return nil, classify(op, attempts)
}

func (c *Client) do(ctx context.Context, method string, cand candidate, body []byte) (Attempt, []byte) {
	a := Attempt{Route: cand.family, Method: method, URL: c.baseURL + cand.path}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL, reader)
	if err != nil {
		a.Err = err
		return a, nil
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("auth-token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		a.Err = err
		return a, nil
	}
	defer resp.Body.Close()

	a.Status = resp.StatusCode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil && a.class() == classSuccess {
		a.Err = fmt.Errorf("read body: %w", err)
		return a, nil
	}
	if a.class() != classSuccess {
		a.Body = errorMessage(respBody)
	}
	return a, respBody
}

// errorMessage extracts a short reason from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
