package swagger

import (
	"encoding/json"
	"sort"
)

// Operation одна unary-процедура connect: POST c JSON-телом
type Operation struct {
	Path        string
	Summary     string
	Description string
	Tag         string
	Request     any // пример тела запроса
	Response    any // пример тела ответа
}

// Document минимальный OpenAPI 3 документ для connect JSON API
type Document struct {
	title   string
	version string
	ops     []Operation
}

// NewDocument создаёт пустой документ
func NewDocument(title, version string) *Document {
	return &Document{title: title, version: version}
}

// Add добавляет процедуры
func (d *Document) Add(ops ...Operation) *Document {
	d.ops = append(d.ops, ops...)
	return d
}

// JSON сериализует документ; пути упорядочены
func (d *Document) JSON() ([]byte, error) {
	ops := append([]Operation(nil), d.ops...)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })

	paths := make(map[string]any, len(ops))
	for _, op := range ops {
		post := map[string]any{
			"summary":     op.Summary,
			"operationId": operationID(op.Path),
			"requestBody": map[string]any{
				"required": true,
				"content":  jsonContent(op.Request),
			},
			"responses": map[string]any{
				"200": map[string]any{"description": "OK", "content": jsonContent(op.Response)},
				"default": map[string]any{
					"description": "Connect error",
					"content":     jsonContent(map[string]string{"code": "invalid_argument", "message": "..."}),
				},
			},
		}
		if op.Description != "" {
			post["description"] = op.Description
		}
		if op.Tag != "" {
			post["tags"] = []string{op.Tag}
		}
		paths[op.Path] = map[string]any{"post": post}
	}

	return json.MarshalIndent(map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": d.title, "version": d.version},
		"paths":   paths,
	}, "", "  ")
}

func jsonContent(example any) map[string]any {
	media := map[string]any{"schema": map[string]any{"type": "object"}}
	if example != nil {
		media["example"] = example
	}
	return map[string]any{"application/json": media}
}

// operationID последний сегмент пути процедуры
func operationID(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
