package localstore

import "fmt"

// Catalog — нетипизированные Model для всех зарегистрированных таблиц.
// Используется HTTP-слоем, где таблица задаётся именем из пути.
type Catalog struct {
	models map[string]*Model[Record]
	names  []string
}

// NewCatalog создаёт Model[Record] для каждой таблицы реестра.
func NewCatalog(db *DB, opts ...ModelOption) *Catalog {
	c := &Catalog{models: make(map[string]*Model[Record], len(tableDefs))}
	for _, def := range tableDefs {
		modelOpts := append([]ModelOption{WithKeyField(def.KeyField)}, opts...)
		c.models[def.Name] = NewModel[Record](db, def.Name, def.Shape, modelOpts...)
		c.names = append(c.names, def.Name)
	}
	return c
}

// Table возвращает Model по имени таблицы или ErrUnknownTable.
func (c *Catalog) Table(name string) (*Model[Record], error) {
	m, ok := c.models[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownTable)
	}
	return m, nil
}

// Names возвращает имена таблиц в порядке реестра.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
