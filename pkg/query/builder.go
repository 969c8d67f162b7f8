// Package query turns the query string of a list request into a MongoDB
// filter, sort, projection and page window.
//
// Query string grammar:
//
//	field=value            equality
//	field[gte]=value       range operators gte, gt, lte, lt (several may be combined)
//	sort=-createdAt,text   comma separated sort keys, "-" for descending
//	fields=text,likes      inclusion projection
//	fields=-password       exclusion projection
//	page=2&limit=20        1-based page window
//
// Everything that is not one of the reserved keys (sort, fields, page, limit)
// is treated as a filter.
package query

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// Reserved query keys.
const (
	KeySort   = "sort"
	KeyFields = "fields"
	KeyPage   = "page"
	KeyLimit  = "limit"
)

// DefaultSortField is sorted descending when a request carries no sort key.
const DefaultSortField = "createdAt"

var reserved = map[string]struct{}{
	KeySort:   {},
	KeyFields: {},
	KeyPage:   {},
	KeyLimit:  {},
}

var operators = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

var (
	fieldPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)
	operatorPattern = regexp.MustCompile(`^([^\[\]]+)\[([^\[\]]*)\]$`)
)

// Spec is the structured form of a list query.
type Spec struct {
	Filter     bson.M
	Sort       bson.D
	Projection bson.M
	Page       int
	Limit      int
}

// Skip returns the number of documents before the requested page.
func (s *Spec) Skip() int64 {
	return int64(s.Page-1) * int64(s.Limit)
}

// FindOptions renders the sort, projection and page window as driver options.
func (s *Spec) FindOptions() *options.FindOptionsBuilder {
	opts := options.Find().
		SetSort(s.Sort).
		SetSkip(s.Skip()).
		SetLimit(int64(s.Limit))
	if len(s.Projection) > 0 {
		opts.SetProjection(s.Projection)
	}
	return opts
}

// PageParams converts the page window for pagination metadata.
func (s *Spec) PageParams() utils.PageParams {
	return utils.PageParams{
		Page:     s.Page,
		PageSize: s.Limit,
		Offset:   int(s.Skip()),
	}
}

// Constrain pins field to value, replacing whatever the client asked for on
// that field. Handlers use it for scoping that must not be overridden, such
// as the chat of a message listing.
func (s *Spec) Constrain(field string, value interface{}) *Spec {
	if s.Filter == nil {
		s.Filter = bson.M{}
	}
	s.Filter[field] = value
	return s
}

// Builder holds the per-collection rules used to build a Spec.
// A Builder is immutable after NewBuilder and safe for concurrent use.
type Builder struct {
	defaultLimit   int
	maxLimit       int
	defaultSort    bson.D
	aliases        map[string]string
	objectIDFields map[string]struct{}
	stringFields   map[string]struct{}
	hiddenFields   map[string]struct{}
}

// Option configures a Builder.
type Option func(*Builder)

// WithLimits sets the default page size and the hard page size ceiling.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(b *Builder) {
		if defaultLimit > 0 {
			b.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			b.maxLimit = maxLimit
		}
	}
}

// WithDefaultSort replaces the "-createdAt" default. Keys use the same
// syntax as the sort query parameter.
func WithDefaultSort(keys ...string) Option {
	return func(b *Builder) {
		d := bson.D{}
		for _, key := range keys {
			field, dir := splitDirection(key)
			d = append(d, bson.E{Key: field, Value: dir})
		}
		if len(d) > 0 {
			b.defaultSort = d
		}
	}
}

// WithAlias renames the query key from to the document field to.
func WithAlias(from, to string) Option {
	return func(b *Builder) {
		b.aliases[from] = to
	}
}

// WithObjectIDFields marks fields whose values are hex ObjectIDs.
func WithObjectIDFields(fields ...string) Option {
	return func(b *Builder) {
		for _, f := range fields {
			b.objectIDFields[f] = struct{}{}
		}
	}
}

// WithStringFields marks fields whose values are never type-inferred.
func WithStringFields(fields ...string) Option {
	return func(b *Builder) {
		for _, f := range fields {
			b.stringFields[f] = struct{}{}
		}
	}
}

// WithHiddenFields marks fields that may not be filtered, sorted or included.
func WithHiddenFields(fields ...string) Option {
	return func(b *Builder) {
		for _, f := range fields {
			b.hiddenFields[f] = struct{}{}
		}
	}
}

// NewBuilder creates a Builder. Without options it pages 100 documents at a
// time (at most 500), sorts by -createdAt and types "_id" as an ObjectID.
// The "id" key is an alias of "_id".
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		defaultLimit:   utils.DefaultPageSize,
		maxLimit:       utils.MaxPageSize,
		defaultSort:    bson.D{{Key: DefaultSortField, Value: -1}},
		aliases:        map[string]string{"id": "_id"},
		objectIDFields: map[string]struct{}{"_id": {}},
		stringFields:   map[string]struct{}{},
		hiddenFields:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build is shorthand for NewBuilder(opts...).Build(values).
func Build(values url.Values, opts ...Option) (*Spec, error) {
	return NewBuilder(opts...).Build(values)
}

// Build runs the filter, sort, projection and paginate stages in order.
// The returned error is always a *Error.
func (b *Builder) Build(values url.Values) (*Spec, error) {
	filter, err := b.filter(values)
	if err != nil {
		return nil, err
	}

	sortSpec, err := b.sort(values.Get(KeySort))
	if err != nil {
		return nil, err
	}

	projection, err := b.projection(values.Get(KeyFields))
	if err != nil {
		return nil, err
	}

	page := utils.ParsePageParams(values, b.defaultLimit, b.maxLimit)

	return &Spec{
		Filter:     filter,
		Sort:       sortSpec,
		Projection: projection,
		Page:       page.Page,
		Limit:      page.PageSize,
	}, nil
}

func (b *Builder) filter(values url.Values) (bson.M, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		if _, ok := reserved[key]; ok {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filter := bson.M{}
	equality := map[string]bool{}

	for _, key := range keys {
		raw := values[key]
		if len(raw) == 0 {
			continue
		}

		name, op := key, ""
		if strings.ContainsAny(key, "[]") {
			m := operatorPattern.FindStringSubmatch(key)
			if m == nil {
				return nil, badFilter(key, "malformed filter key")
			}
			name = m[1]
			mongoOp, ok := operators[m[2]]
			if !ok {
				return nil, badFilter(key, "unknown operator %q", m[2])
			}
			op = mongoOp
		}

		field, err := b.resolve(name)
		if err != nil {
			return nil, badFilter(key, "%s", err.Error())
		}

		if op == "" {
			if _, exists := filter[field]; exists {
				return nil, badFilter(key, "field filtered more than once")
			}
			if len(raw) == 1 {
				v, err := b.typed(field, raw[0])
				if err != nil {
					return nil, badFilter(key, "%s", err.Error())
				}
				filter[field] = v
			} else {
				in := make(bson.A, 0, len(raw))
				for _, r := range raw {
					v, err := b.typed(field, r)
					if err != nil {
						return nil, badFilter(key, "%s", err.Error())
					}
					in = append(in, v)
				}
				filter[field] = bson.M{"$in": in}
			}
			equality[field] = true
			continue
		}

		if len(raw) > 1 {
			return nil, badFilter(key, "operator given more than once")
		}
		if equality[field] {
			return nil, badFilter(key, "equality and range operator on the same field")
		}
		v, err := b.typed(field, raw[0])
		if err != nil {
			return nil, badFilter(key, "%s", err.Error())
		}

		ops, _ := filter[field].(bson.M)
		if ops == nil {
			ops = bson.M{}
			filter[field] = ops
		}
		ops[op] = v
	}

	return filter, nil
}

func (b *Builder) sort(raw string) (bson.D, error) {
	var d bson.D
	seen := map[string]bool{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir := splitDirection(part)
		field, err := b.resolve(name)
		if err != nil {
			return nil, badSort(part, "%s", err.Error())
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		d = append(d, bson.E{Key: field, Value: dir})
	}

	if len(d) == 0 {
		d = append(d, b.defaultSort...)
		for _, e := range d {
			seen[e.Key] = true
		}
	}

	if !seen["_id"] {
		last := d[len(d)-1].Value
		d = append(d, bson.E{Key: "_id", Value: last})
	}

	return d, nil
}

func (b *Builder) projection(raw string) (bson.M, error) {
	var proj bson.M
	mode := 0

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		include := 1
		name := part
		if strings.HasPrefix(part, "-") {
			include = 0
			name = part[1:]
		}

		switch {
		case mode == 0 && include == 1:
			mode = 1
		case mode == 0:
			mode = -1
		case (mode == 1) != (include == 1):
			return nil, badProjection(part, "cannot mix included and excluded fields")
		}

		field, err := b.resolveName(name)
		if err != nil {
			return nil, badProjection(part, "%s", err.Error())
		}
		if _, hidden := b.hiddenFields[field]; hidden && include == 1 {
			return nil, badProjection(part, "field is not selectable")
		}

		if proj == nil {
			proj = bson.M{}
		}
		proj[field] = include
	}

	if mode == -1 {
		for field := range b.hiddenFields {
			proj[field] = 0
		}
	}

	return proj, nil
}

// resolve validates a client field name, applies aliases and rejects hidden
// fields.
func (b *Builder) resolve(name string) (string, error) {
	field, err := b.resolveName(name)
	if err != nil {
		return "", err
	}
	if _, hidden := b.hiddenFields[field]; hidden {
		return "", errHidden
	}
	return field, nil
}

func (b *Builder) resolveName(name string) (string, error) {
	if alias, ok := b.aliases[name]; ok {
		name = alias
	}
	if !fieldPattern.MatchString(name) {
		return "", errFieldName
	}
	return name, nil
}

func (b *Builder) typed(field, raw string) (interface{}, error) {
	if _, ok := b.objectIDFields[field]; ok {
		oid, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return nil, errObjectID
		}
		return oid, nil
	}
	if _, ok := b.stringFields[field]; ok {
		return raw, nil
	}
	return inferValue(raw), nil
}

// inferValue types an untyped query value: integer, float, boolean and
// RFC3339 timestamp are tried in that order before falling back to string.
func inferValue(raw string) interface{} {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return raw
}

func splitDirection(key string) (string, int) {
	if strings.HasPrefix(key, "-") {
		return key[1:], -1
	}
	return strings.TrimPrefix(key, "+"), 1
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

const (
	errFieldName fieldError = "invalid field name"
	errHidden    fieldError = "field is not queryable"
	errObjectID  fieldError = "value is not a valid id"
)
