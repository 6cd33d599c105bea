// Package outcome turns a finished HTTP exchange into one of four
// classified outcomes. Classification is pure: no I/O, no side effects.
package outcome

import (
	"bytes"
	"encoding/json"
	"net/http"

	"article-desk/internal/model"
)

// Kind is the class of a finished exchange.
type Kind int

const (
	OK Kind = iota
	Rejected
	Unauthorized
	Unreachable
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Rejected:
		return "rejected"
	case Unauthorized:
		return "unauthorized"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// Op names the logical operation an exchange belongs to.
type Op string

const (
	OpLogin  Op = "login"
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// NetworkError is the message used when no response arrived.
const NetworkError = "Network error"

// DefaultMessage is shown when a failed response carries no message.
func (op Op) DefaultMessage() string {
	switch op {
	case OpLogin:
		return "Login failed"
	case OpList:
		return "Failed to fetch articles"
	case OpCreate:
		return "Failed to create article"
	case OpUpdate:
		return "Failed to update article"
	case OpDelete:
		return "Failed to delete article"
	}
	return "Request failed"
}

// Exchange is the raw result of one request. Status is 0 when no response
// was received, in which case Err says why.
type Exchange struct {
	Status int
	Body   []byte
	Err    error
}

// Payload is the JSON body the article service answers with.
type Payload struct {
	Message  string           `json:"message"`
	Token    string           `json:"token,omitempty"`
	Article  *model.Article   `json:"article,omitempty"`
	Articles *[]model.Article `json:"articles,omitempty"`
}

// Outcome is a classified exchange. Data is only meaningful for OK.
type Outcome struct {
	Kind    Kind
	Message string
	Data    Payload
}

func (o Outcome) OK() bool { return o.Kind == OK }

// ArticleList returns the listed articles, or nil when there were none.
func (o Outcome) ArticleList() []model.Article {
	if o.Data.Articles == nil {
		return nil
	}
	return *o.Data.Articles
}

// Classify maps the exchange of op to an Outcome.
func Classify(op Op, ex Exchange) Outcome {
	if ex.Status == 0 {
		return Outcome{Kind: Unreachable, Message: NetworkError}
	}

	var body Payload
	var parseErr error
	if len(bytes.TrimSpace(ex.Body)) > 0 {
		parseErr = json.Unmarshal(ex.Body, &body)
	}

	switch {
	case ex.Status == http.StatusUnauthorized:
		return Outcome{Kind: Unauthorized, Message: messageOr(body.Message, op)}
	case ex.Status >= 200 && ex.Status < 300:
		if parseErr != nil || !hasShape(op, body) {
			return Outcome{Kind: Rejected, Message: op.DefaultMessage()}
		}
		return Outcome{Kind: OK, Message: body.Message, Data: body}
	default:
		return Outcome{Kind: Rejected, Message: messageOr(body.Message, op)}
	}
}

// Unexpected is the outcome reported when an operation failed inside the
// client itself rather than on the wire.
func Unexpected(op Op) Outcome {
	return Outcome{Kind: Rejected, Message: op.DefaultMessage()}
}

func messageOr(msg string, op Op) string {
	if msg != "" {
		return msg
	}
	return op.DefaultMessage()
}

// hasShape reports whether a success body carries what op needs.
func hasShape(op Op, body Payload) bool {
	switch op {
	case OpLogin:
		return body.Token != ""
	case OpList:
		return body.Articles != nil
	case OpCreate, OpUpdate:
		return body.Article != nil
	}
	return true
}
