package domain

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"multimodal/pkg/apperror"
)

//go:embed dataset/asia.yaml dataset/network.schema.json
var datasetFS embed.FS

const (
	defaultDatasetFile = "dataset/asia.yaml"
	schemaFile         = "dataset/network.schema.json"
)

// Dataset исходный набор пунктов и маршрутов
type Dataset struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Locations []Location `json:"locations" yaml:"locations"`
	Routes    []Route    `json:"routes" yaml:"routes"`
}

// Clone возвращает независимую копию набора
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Name:      d.Name,
		Locations: make([]Location, len(d.Locations)),
		Routes:    make([]Route, len(d.Routes)),
	}
	copy(out.Locations, d.Locations)
	copy(out.Routes, d.Routes)
	return out
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func datasetSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := datasetFS.ReadFile(schemaFile)
		if err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = jsonschema.CompileString("network.schema.json", string(raw))
	})
	return schema, schemaErr
}

// DefaultDataset возвращает встроенный набор данных
func DefaultDataset() (*Dataset, error) {
	raw, err := datasetFS.ReadFile(defaultDatasetFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded dataset: %w", err)
	}
	return ParseDataset(raw)
}

// MustDefaultDataset возвращает встроенный набор или паникует
func MustDefaultDataset() *Dataset {
	ds, err := DefaultDataset()
	if err != nil {
		panic("failed to load embedded dataset: " + err.Error())
	}
	return ds
}

// LoadDatasetFile читает набор данных из YAML или JSON файла
func LoadDatasetFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return LoadDataset(f)
}

// LoadDataset читает набор данных из потока
func LoadDataset(r io.Reader) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(raw)
}

// ParseDataset разбирает YAML (JSON является его подмножеством),
// проверяет документ по JSON-схеме и ссылочную целостность
func ParseDataset(raw []byte) (*Dataset, error) {
	var doc any
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidNetwork, "dataset is not valid YAML")
	}

	// yaml -> json нормализует типы чисел для валидатора
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidNetwork, "dataset cannot be represented as JSON")
	}
	var generic any
	if err := json.Unmarshal(canonical, &generic); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidNetwork, "dataset cannot be represented as JSON")
	}

	s, err := datasetSchema()
	if err != nil {
		return nil, fmt.Errorf("compile dataset schema: %w", err)
	}
	if err := s.Validate(generic); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidNetwork, "dataset does not match schema").
			WithDetails("violation", err.Error())
	}

	var ds Dataset
	if err := json.Unmarshal(canonical, &ds); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidNetwork, "decode dataset")
	}

	if _, _, _, err := buildState(ds.Locations, ds.Routes); err != nil {
		return nil, err
	}
	return &ds, nil
}

// MarshalYAMLBytes сериализует набор данных в YAML
func (d *Dataset) MarshalYAMLBytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
