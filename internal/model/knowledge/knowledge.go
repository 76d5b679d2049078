package knowledge

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

// ErrNoMatch 表示知识库中没有相关条目。
var ErrNoMatch = errors.New("no relevant information found in knowledge base")

// Entry 知识库中的一条键值记录。
type Entry struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Weather 某个地点的模拟天气数据，温度单位为摄氏度。
type Weather struct {
	Temp      int    `yaml:"temp" json:"temp"`
	Condition string `yaml:"condition" json:"condition"`
	Humidity  int    `yaml:"humidity" json:"humidity"`
}

// Base 是自定义 LLM 服务使用的小型知识库。
type Base struct {
	CompanyInfo      []Entry            `yaml:"company_info"`
	FAQ              []Entry            `yaml:"faq"`
	WeatherLocations map[string]Weather `yaml:"weather_locations"`
}

// Default 返回内置的知识库。
func Default() (*Base, error) {
	return Parse(defaultKnowledge)
}

// Load 读取 YAML 知识库文件；path 为空时使用内置数据。
func Load(path string) (*Base, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return Parse(raw)
}

// Parse 解析 YAML 格式的知识库。
func Parse(raw []byte) (*Base, error) {
	var base Base
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	if base.WeatherLocations == nil {
		base.WeatherLocations = map[string]Weather{}
	}
	return &base, nil
}

// LocationKey normalizes "New York, USA" style input into the lookup key form.
func LocationKey(location string) string {
	key := strings.ToLower(location)
	key = strings.ReplaceAll(key, " ", "_")
	return strings.ReplaceAll(key, ",", "")
}

// Weather 按地点查找天气数据。
func (b *Base) Weather(location string) (Weather, bool) {
	w, ok := b.WeatherLocations[LocationKey(location)]
	return w, ok
}

// Locations 返回所有可查询天气的地点，按字母序排列。
func (b *Base) Locations() []string {
	keys := make([]string, 0, len(b.WeatherLocations))
	for k := range b.WeatherLocations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Search 对公司信息与 FAQ 做关键词匹配，每条命中记录占一行。
func (b *Base) Search(query string) (string, error) {
	q := strings.ToLower(query)
	var lines []string

	for _, e := range b.CompanyInfo {
		if strings.Contains(q, e.Key) || strings.Contains(q, strings.ToLower(e.Value)) {
			lines = append(lines, e.Key+": "+e.Value)
		}
	}

	for _, e := range b.FAQ {
		if strings.Contains(q, e.Key) || anyWordIn(q, e.Value) {
			lines = append(lines, e.Key+": "+e.Value)
		}
	}

	if len(lines) == 0 {
		return "", ErrNoMatch
	}
	return strings.Join(lines, "\n"), nil
}

func anyWordIn(query, answer string) bool {
	for _, word := range strings.Fields(strings.ToLower(answer)) {
		if strings.Contains(query, word) {
			return true
		}
	}
	return false
}

// SystemPrompt builds the RAG system message prepended to every completion.
func (b *Base) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a helpful AI assistant with access to a company knowledge base and external tools.\n\n")
	sb.WriteString("Company Information:\n")
	sb.WriteString(entriesJSON(b.CompanyInfo))
	sb.WriteString("\n\nFAQ Information:\n")
	sb.WriteString(entriesJSON(b.FAQ))
	sb.WriteString("\n\nWhen users ask questions, first check if the information is available in the knowledge base.\n")
	sb.WriteString("Use tools when you need real-time information or to perform calculations.\n")
	sb.WriteString("Be helpful, accurate, and reference your knowledge base when appropriate.\n")
	return sb.String()
}

func entriesJSON(entries []Entry) string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
