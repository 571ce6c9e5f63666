package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ============================================================
// Ordered JSON documents
// ============================================================

var (
	null = json.RawMessage("null")

	errNotObject = errors.New("expected JSON object")
)

// rawObject: прочитанный объект, значения остаются исходным JSON.
type rawObject = orderedmap.OrderedMap[string, json.RawMessage]

// document: собираемый объект с порядком ключей как при вставке.
type document = orderedmap.OrderedMap[string, any]

func newRawObject() *rawObject {
	return orderedmap.New[string, json.RawMessage](orderedmap.WithDisableHTMLEscape[string, json.RawMessage]())
}

func newDocument() *document {
	return orderedmap.New[string, any](orderedmap.WithDisableHTMLEscape[string, any]())
}

// decodeObject читает JSON-объект, сохраняя порядок ключей.
func decodeObject(data []byte) (*rawObject, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	obj := newRawObject()
	if err := json.Unmarshal(trimmed, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// toDocument копирует прочитанный объект для дальнейшего дополнения.
func toDocument(obj *rawObject) *document {
	doc := newDocument()
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		doc.Set(pair.Key, pair.Value)
	}
	return doc
}

// marshal: json.Marshal без HTML-экранирования.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeFile: отступ 2 пробела, юникод без экранирования.
func encodeFile(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
