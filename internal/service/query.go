package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"users-api/internal/domain"
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Query narrows, sorts and pages a list of users. Zero values disable the
// corresponding step.
type Query struct {
	Search   string
	Equals   map[string]string
	Roles    []string
	IsActive *bool
	MinAge   *int
	MaxAge   *int
	SortBy   string
	Order    string
	Page     int
	Limit    int
}

// QueryResult is one page of matches. Total counts all matches.
type QueryResult struct {
	Data       []domain.User
	Total      int
	Page       int
	Limit      int
	Offset     int
	TotalPages int
}

// Apply runs q over users, which must be in insertion order.
func Apply(users []domain.User, q Query) *QueryResult {
	matched := make([]domain.User, 0, len(users))
	for _, u := range users {
		if q.matches(u) {
			matched = append(matched, u)
		}
	}

	if q.SortBy != "" {
		sortUsers(matched, q.SortBy, strings.EqualFold(q.Order, OrderDesc))
	}

	res := &QueryResult{
		Total: len(matched),
		Page:  1,
		Limit: q.Limit,
	}
	if q.Limit <= 0 {
		res.Limit = 0
		res.Data = matched
		if res.Total > 0 {
			res.TotalPages = 1
		}
		return res
	}

	if q.Page > 1 {
		res.Page = q.Page
	}
	res.TotalPages = res.Total / res.Limit
	if res.Total%res.Limit != 0 {
		res.TotalPages++
	}

	// (Page-1)*Limit saturates; only the slice bounds are clamped to Total
	if res.Page-1 > math.MaxInt/res.Limit {
		res.Offset = math.MaxInt
	} else {
		res.Offset = (res.Page - 1) * res.Limit
	}

	start := min(res.Offset, res.Total)
	end := start + min(res.Limit, res.Total-start)
	res.Data = matched[start:end]
	return res
}

// ItemRange returns the 1-based positions the requested page covers. The end
// saturates instead of overflowing.
func (r *QueryResult) ItemRange() (first, last int) {
	if r.Offset == math.MaxInt {
		return math.MaxInt, math.MaxInt
	}
	first = r.Offset + 1
	if r.Limit > math.MaxInt-r.Offset {
		return first, math.MaxInt
	}
	return first, r.Offset + r.Limit
}

func (q Query) matches(u domain.User) bool {
	if q.Search != "" && !matchesSearch(u, q.Search) {
		return false
	}
	for name, want := range q.Equals {
		got, ok := fieldString(u, name)
		if !ok || got != want {
			return false
		}
	}
	if len(q.Roles) > 0 && !hasAnyRole(u, q.Roles) {
		return false
	}
	if q.IsActive != nil {
		active, ok := boolAttr(u.Attributes["isActive"])
		if !ok || active != *q.IsActive {
			return false
		}
	}
	if q.MinAge != nil || q.MaxAge != nil {
		age, ok := numberAttr(u.Attributes["age"])
		if !ok {
			return false
		}
		if q.MinAge != nil && age < float64(*q.MinAge) {
			return false
		}
		if q.MaxAge != nil && age > float64(*q.MaxAge) {
			return false
		}
	}
	return true
}

func matchesSearch(u domain.User, term string) bool {
	term = strings.ToLower(term)
	for _, v := range u.Attributes {
		s, ok := v.(string)
		if ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func hasAnyRole(u domain.User, roles []string) bool {
	var held []string
	if role, ok := u.Attributes.String("role"); ok {
		held = append(held, role)
	}
	if list, ok := u.Attributes["roles"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				held = append(held, s)
			}
		}
	}
	for _, want := range roles {
		for _, have := range held {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// fieldString renders a field the way it would appear in a query string.
func fieldString(u domain.User, name string) (string, bool) {
	switch name {
	case domain.FieldID:
		return strconv.FormatInt(u.ID, 10), true
	}
	v, ok := u.Attributes[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

func boolAttr(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return strings.EqualFold(t, "true"), true
	}
	return false, false
}

func numberAttr(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// sortUsers orders by field; users missing the field go last regardless of direction.
func sortUsers(users []domain.User, field string, desc bool) {
	key := func(u domain.User) (any, bool) {
		switch field {
		case domain.FieldID:
			return float64(u.ID), true
		case domain.FieldCreatedAt:
			return float64(u.CreatedAt.UnixNano()), true
		case domain.FieldUpdatedAt:
			return float64(u.UpdatedAt.UnixNano()), true
		}
		v, ok := u.Attributes[field]
		if !ok || v == nil {
			return nil, false
		}
		if f, ok := numberAttr(v); ok {
			if _, isString := v.(string); !isString {
				return f, true
			}
		}
		return fmt.Sprint(v), true
	}

	sort.SliceStable(users, func(i, j int) bool {
		a, aok := key(users[i])
		b, bok := key(users[j])
		if !aok || !bok {
			return aok && !bok
		}
		c := compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b any) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	switch {
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a.(string), b.(string))
}
