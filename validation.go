package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// identifier accepts what uuid.Parse accepts, so body ids follow the
	// same rule as ids in the URL path.
	mustRegister(v, "identifier", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// requestError is a terminal answer produced by a failed check.
type requestError struct {
	Status  int
	Message string
}

func (e *requestError) Error() string { return e.Message }

func badRequest(format string, args ...any) *requestError {
	return &requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *requestError {
	return &requestError{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// check inspects an already parsed request. A nil result lets the request
// through to the next check.
type check func() *requestError

// runChecks evaluates checks in order and stops at the first failure.
func runChecks(checks ...check) *requestError {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

func notNull[T any](v *T) check {
	return func() *requestError {
		if v == nil {
			return badRequest("A null argument is not allowed!")
		}
		return nil
	}
}

func validIDParam(raw string, dst *uuid.UUID) check {
	return func() *requestError {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest("%q is not a valid identifier", raw)
		}
		*dst = id
		return nil
	}
}

// validPayload runs the struct-tag rules of ItemPayload.
func validPayload(p *ItemPayload) check {
	return func() *requestError {
		if err := validate.Struct(p); err != nil {
			return badRequest("%s", describeValidationError(err))
		}
		return nil
	}
}

func emptyID(p *ItemPayload) check {
	return func() *requestError {
		if strings.TrimSpace(p.ID) != "" {
			return badRequest("id must not be set when creating an item")
		}
		return nil
	}
}

func requiredID(p *ItemPayload) check {
	return func() *requestError {
		if p.parsedID() == uuid.Nil {
			return badRequest("id is required")
		}
		return nil
	}
}

func consistentIDs(pathID *uuid.UUID, p *ItemPayload) check {
	return func() *requestError {
		if *pathID != p.parsedID() {
			return badRequest("Inconsistence in URL id and item id!")
		}
		return nil
	}
}

func nonEmptyCollection(items []*ItemPayload) check {
	return func() *requestError {
		if len(items) == 0 {
			return forbidden("Putting empty collection is not allowed!")
		}
		return nil
	}
}

func validCollection(items []*ItemPayload) check {
	return func() *requestError {
		for i, item := range items {
			if item == nil {
				return badRequest("item %d: a null item is not allowed", i)
			}
			if err := validate.Struct(item); err != nil {
				return badRequest("item %d: %s", i, describeValidationError(err))
			}
			if item.parsedID() == uuid.Nil {
				return badRequest("item %d: id is required", i)
			}
		}
		return nil
	}
}

func uniqueIDs(items []*ItemPayload) check {
	return func() *requestError {
		seen := make(map[uuid.UUID]struct{}, len(items))
		for _, item := range items {
			id := item.parsedID()
			if _, dup := seen[id]; dup {
				return badRequest("ids in given collection are not unique")
			}
			seen[id] = struct{}{}
		}
		return nil
	}
}

func nonEmptyIDs(ids []uuid.UUID) check {
	return func() *requestError {
		if len(ids) == 0 {
			return forbidden("Deleting an empty collection is not allowed!")
		}
		return nil
	}
}

func distinctIDs(ids []uuid.UUID) check {
	return func() *requestError {
		seen := make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return badRequest("ids in given collection are not unique")
			}
			seen[id] = struct{}{}
		}
		return nil
	}
}

func describeValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "notblank":
			msgs = append(msgs, field+" must not be blank")
		case "identifier":
			msgs = append(msgs, field+" is not a valid identifier")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %q", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
