package localstore

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/validate"
)

// Имена локальных таблиц.
const (
	TableUsers         = "users"
	TableSessions      = "sessions"
	TableMessages      = "messages"
	TableTopics        = "topics"
	TablePlugins       = "plugins"
	TableFiles         = "files"
	TableSessionGroups = "session_groups"
)

// TableDef — описание локальной таблицы: форма записи и поле-ключ.
type TableDef struct {
	Name     string
	KeyField string
	Shape    *validate.Shape
}

// tableDefs — реестр таблиц в порядке создания.
var tableDefs = []TableDef{
	{Name: TableUsers, KeyField: validate.FieldID, Shape: userShape()},
	{Name: TableSessions, KeyField: validate.FieldID, Shape: sessionShape()},
	{Name: TableMessages, KeyField: validate.FieldID, Shape: messageShape()},
	{Name: TableTopics, KeyField: validate.FieldID, Shape: topicShape()},
	{Name: TablePlugins, KeyField: "identifier", Shape: pluginShape()},
	{Name: TableFiles, KeyField: validate.FieldID, Shape: fileShape()},
	{Name: TableSessionGroups, KeyField: validate.FieldID, Shape: sessionGroupShape()},
}

// TableNames возвращает имена всех таблиц записей.
func TableNames() []string {
	names := make([]string, 0, len(tableDefs))
	for _, d := range tableDefs {
		names = append(names, d.Name)
	}
	return names
}

// LookupTable возвращает описание таблицы по имени.
func LookupTable(name string) (TableDef, bool) {
	for _, d := range tableDefs {
		if d.Name == name {
			return d, true
		}
	}
	return TableDef{}, false
}

// --- Формы записей ---

func str() *openapi3.Schema { return openapi3.NewStringSchema() }
func nonEmpty() *openapi3.Schema { return openapi3.NewStringSchema().WithMinLength(1) }
func nullableStr() *openapi3.Schema { return openapi3.NewStringSchema().WithNullable() }

// anyJSON — произвольное JSON-значение (объект, массив, скаляр или null).
func anyJSON() *openapi3.Schema {
	return &openapi3.Schema{Nullable: true}
}

func object(required []string, props map[string]*openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewObjectSchema().WithProperties(props)
	s.Required = required
	return s
}

func userShape() *validate.Shape {
	settings := openapi3.NewObjectSchema().WithNullable().WithAnyAdditionalProperties()
	return validate.NewShape(TableUsers, object(
		[]string{"email"},
		map[string]*openapi3.Schema{
			"name":     str(),
			"email":    str(),
			"avatar":   nullableStr(),
			"settings": settings,
		},
	))
}

func sessionShape() *validate.Shape {
	return validate.NewShape(TableSessions, object(
		[]string{"userId", "type"},
		map[string]*openapi3.Schema{
			"userId":          nonEmpty(),
			"groupId":         nullableStr(),
			"type":            str().WithEnum(model.SessionTypeAgent, model.SessionTypeGroup),
			"title":           str(),
			"description":     str(),
			"avatar":          str(),
			"backgroundColor": str(),
			"pinned":          openapi3.NewBoolSchema(),
			"config":          anyJSON(),
		},
	))
}

func messageShape() *validate.Shape {
	return validate.NewShape(TableMessages, object(
		[]string{"sessionId", "role", "content"},
		map[string]*openapi3.Schema{
			"sessionId": nonEmpty(),
			"topicId":   nullableStr(),
			"parentId":  nullableStr(),
			"role": str().WithEnum(
				model.RoleUser, model.RoleSystem, model.RoleAssistant, model.RoleFunction, model.RoleTool,
			),
			"content":  str(),
			"model":    str(),
			"provider": str(),
		},
	))
}

func topicShape() *validate.Shape {
	return validate.NewShape(TableTopics, object(
		[]string{"sessionId", "title"},
		map[string]*openapi3.Schema{
			"sessionId": nonEmpty(),
			"title":     str(),
			"favorite":  openapi3.NewBoolSchema(),
		},
	))
}

func pluginShape() *validate.Shape {
	return validate.NewShape(TablePlugins, object(
		[]string{"identifier", "type"},
		map[string]*openapi3.Schema{
			"identifier": nonEmpty(),
			"userId":     str(),
			"type":       str().WithEnum(model.PluginTypePlugin, model.PluginTypeCustomPlugin),
			"manifest":   anyJSON(),
			"settings":   anyJSON(),
		},
	))
}

func fileShape() *validate.Shape {
	return validate.NewShape(TableFiles, object(
		[]string{"name", "fileType", "size"},
		map[string]*openapi3.Schema{
			"userId":   str(),
			"name":     nonEmpty(),
			"fileType": str(),
			"size":     openapi3.NewInt64Schema().WithMin(0),
			"url":      str(),
		},
	))
}

func sessionGroupShape() *validate.Shape {
	return validate.NewShape(TableSessionGroups, object(
		[]string{"name"},
		map[string]*openapi3.Schema{
			"userId": str(),
			"name":   nonEmpty(),
			"sort":   openapi3.NewIntegerSchema().WithNullable(),
		},
	))
}
