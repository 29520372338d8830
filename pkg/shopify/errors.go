package shopify

import (
	"strings"
)

// GraphQLError reports top-level errors returned in a GraphQL response.
type GraphQLError struct {
	Messages []string
	Codes    []string
}

func newGraphQLError(errs []graphQLError) *GraphQLError {
	ge := &GraphQLError{}
	for _, e := range errs {
		ge.Messages = append(ge.Messages, e.Message)
		if e.Extensions.Code != "" {
			ge.Codes = append(ge.Codes, e.Extensions.Code)
		}
	}
	return ge
}

func (e *GraphQLError) Error() string {
	return "shopify: graphql errors: " + strings.Join(e.Messages, "; ")
}

// UserError is a validation error returned by a mutation payload.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// UserErrors is returned when a mutation reports userErrors.
type UserErrors []UserError

func (u UserErrors) Error() string {
	msgs := make([]string, len(u))
	for i, e := range u {
		if len(e.Field) > 0 {
			msgs[i] = strings.Join(e.Field, ".") + ": " + e.Message
		} else {
			msgs[i] = e.Message
		}
	}
	return "shopify: user errors: " + strings.Join(msgs, "; ")
}

// HasCode reports whether any user error carries code.
func (u UserErrors) HasCode(code string) bool {
	for _, e := range u {
		if e.Code == code {
			return true
		}
	}
	return false
}
