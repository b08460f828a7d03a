// Пакет validate — проверка записей по декларативным схемам (OpenAPI 3 object schema).
//
// Два режима:
//   - Full — все обязательные поля присутствуют и имеют верный тип,
//     необъявленные поля отбрасываются;
//   - Partial — проверяются только переданные поля, необъявленные
//     и служебные (id, createdAt, updatedAt) поля отклоняются.
//
// Validate — чистая функция: не обращается к хранилищу и не меняет вход.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Mode — режим проверки.
type Mode int

const (
	Full Mode = iota
	Partial
)

func (m Mode) String() string {
	if m == Partial {
		return "partial"
	}
	return "full"
}

// Служебные поля жизненного цикла записи.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// partialCacheSize — сколько частичных схем (наборов ключей) кэшируется на одну форму.
const partialCacheSize = 128

// Record — нормализованная запись (JSON-объект).
type Record = map[string]any

// Shape — именованная схема записи одной таблицы.
type Shape struct {
	name     string
	schema   *openapi3.Schema
	partials *lru.Cache[string, *openapi3.Schema]
}

// NewShape создаёт форму из object-схемы kin-openapi.
// Служебные поля в схеме не объявляются: их проставляет хранилище.
func NewShape(name string, schema *openapi3.Schema) *Shape {
	// Ошибка возможна только при size <= 0.
	cache, _ := lru.New[string, *openapi3.Schema](partialCacheSize)
	return &Shape{name: name, schema: schema, partials: cache}
}

// Name возвращает имя формы.
func (s *Shape) Name() string { return s.name }

// Declares проверяет, объявлено ли поле в схеме.
func (s *Shape) Declares(field string) bool {
	_, ok := s.schema.Properties[field]
	return ok
}

// Validate проверяет raw по форме shape в режиме mode.
// raw может быть map[string]any, структурой, []byte или json.RawMessage.
// Возвращает нормализованную копию записи или *ValidationError.
func Validate(raw any, shape *Shape, mode Mode) (Record, error) {
	rec, err := normalize(raw)
	if err != nil {
		return nil, &ValidationError{
			Shape:  shape.name,
			Mode:   mode,
			Fields: []FieldError{{Path: "", Reason: err.Error()}},
		}
	}

	if mode == Partial {
		return validatePartial(rec, shape)
	}
	return validateFull(rec, shape)
}

func validateFull(rec Record, shape *Shape) (Record, error) {
	for k := range rec {
		if !shape.Declares(k) {
			delete(rec, k)
		}
	}

	if err := shape.schema.VisitJSON(rec, openapi3.MultiErrors()); err != nil {
		return nil, &ValidationError{Shape: shape.name, Mode: Full, Fields: flatten(err)}
	}
	return rec, nil
}

func validatePartial(rec Record, shape *Shape) (Record, error) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []FieldError
	for _, k := range keys {
		switch {
		case isReserved(k):
			fields = append(fields, FieldError{Path: "/" + k, Reason: "служебное поле не может изменяться"})
		case !shape.Declares(k):
			fields = append(fields, FieldError{Path: "/" + k, Reason: "поле не объявлено в схеме"})
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Shape: shape.name, Mode: Partial, Fields: fields}
	}

	sub := shape.subset(keys)
	if err := sub.VisitJSON(rec, openapi3.MultiErrors()); err != nil {
		return nil, &ValidationError{Shape: shape.name, Mode: Partial, Fields: flatten(err)}
	}
	return rec, nil
}

// subset возвращает схему, содержащую только поля keys, без обязательных полей.
// Результат кэшируется по набору ключей.
func (s *Shape) subset(keys []string) *openapi3.Schema {
	cacheKey := strings.Join(keys, ",")
	if cached, ok := s.partials.Get(cacheKey); ok {
		return cached
	}

	sub := openapi3.NewObjectSchema()
	for _, k := range keys {
		sub.Properties[k] = s.schema.Properties[k]
	}
	s.partials.Add(cacheKey, sub)
	return sub
}

func isReserved(field string) bool {
	return field == FieldID || field == FieldCreatedAt || field == FieldUpdatedAt
}

// normalize приводит вход к JSON-объекту с типами encoding/json
// (float64 для чисел, map[string]any для объектов).
func normalize(raw any) (Record, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("ожидается JSON-объект, получено null")
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("запись не сериализуется в JSON: %v", err)
		}
		data = b
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("ожидается JSON-объект")
	}

	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("некорректный JSON: %v", err)
	}
	return rec, nil
}

// flatten раскладывает ошибку kin-openapi в список полей.
func flatten(err error) []FieldError {
	switch e := err.(type) {
	case openapi3.MultiError:
		var out []FieldError
		for _, inner := range e {
			out = append(out, flatten(inner)...)
		}
		return out
	case *openapi3.SchemaError:
		reason := e.Reason
		if reason == "" {
			reason = e.Error()
		}
		path := ""
		if ptr := e.JSONPointer(); len(ptr) > 0 {
			path = "/" + strings.Join(ptr, "/")
		}
		return []FieldError{{Path: path, Reason: reason}}
	default:
		return []FieldError{{Reason: err.Error()}}
	}
}

// Normalize приводит вход к JSON-объекту без проверки формы.
func Normalize(raw any) (Record, error) {
	return normalize(raw)
}
