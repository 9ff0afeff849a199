// Package promparse: Prometheus text exposition format parser.
//
// `mqvi-client stats` komutu çalışan bir client'ın /metrics endpoint'ini
// okur ve bu paketle özetler. Label-aware lookup destekler: aynı metrik
// adıyla birden fazla label kombinasyonu varsa spesifik label'a göre veya
// toplu (sum) erişim sağlar.
//
//	# HELP metric_name Description text
//	# TYPE metric_name counter
//	metric_name{method="GET",outcome="ok"} 42
//
// Kullanım:
//
//	m := promparse.Parse(body)
//	total := m.Sum("mqvi_client_requests_total")
//	failed := m.SumWithLabel("mqvi_client_requests_total", "outcome", "network")
package promparse

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// Sample, tek bir metrik satırı.
type Sample struct {
	Labels map[string]string
	Value  float64
}

// Metrics, parse edilen metrikleri ada göre tutar.
type Metrics struct {
	data map[string][]Sample
}

// Parse, exposition metnini parse eder. Comment, boş ve bozuk satırlar atlanır.
func Parse(body string) *Metrics {
	m := &Metrics{data: make(map[string][]Sample)}
	scanner := bufio.NewScanner(strings.NewReader(body))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, labels, raw, ok := parseLine(line)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		m.data[name] = append(m.data[name], Sample{Labels: labels, Value: v})
	}

	return m
}

// Has, metriğin en az bir örneği var mı.
func (m *Metrics) Has(name string) bool {
	return len(m.data[name]) > 0
}

// Value, ilk örneğin değerini döner. Bulunamazsa 0.
func (m *Metrics) Value(name string) float64 {
	samples := m.data[name]
	if len(samples) == 0 {
		return 0
	}
	return samples[0].Value
}

// Sum, tüm label kombinasyonlarının toplamı.
func (m *Metrics) Sum(name string) float64 {
	var total float64
	for _, s := range m.data[name] {
		total += s.Value
	}
	return total
}

// SumWithLabel, labelKey=labelValue eşleşen örneklerin toplamı.
func (m *Metrics) SumWithLabel(name, labelKey, labelValue string) float64 {
	var total float64
	for _, s := range m.data[name] {
		if s.Labels[labelKey] == labelValue {
			total += s.Value
		}
	}
	return total
}

// GroupBy, örnekleri bir label değerine göre toplar.
// Label'ı olmayan örnekler "" anahtarına düşer.
func (m *Metrics) GroupBy(name, labelKey string) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range m.data[name] {
		out[s.Labels[labelKey]] += s.Value
	}
	return out
}

// Names, parse edilen metrik adlarını sıralı döner.
func (m *Metrics) Names() []string {
	names := make([]string, 0, len(m.data))
	for n := range m.data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ─── Parser ───

// parseLine, tek satırı ayrıştırır.
//
//	`name{a="x",b="y, z"} 42 1700000000` → ("name", {a:x, b:"y, z"}, "42")
//	`name 42`                           → ("name", nil, "42")
func parseLine(line string) (name string, labels map[string]string, value string, ok bool) {
	var rest string

	if brace := strings.IndexByte(line, '{'); brace >= 0 {
		name = line[:brace]
		var end int
		labels, end, ok = parseLabels(line[brace+1:])
		if !ok {
			return "", nil, "", false
		}
		rest = line[brace+1+end:]
	} else {
		idx := strings.IndexAny(line, " \t")
		if idx < 0 {
			return "", nil, "", false
		}
		name = line[:idx]
		rest = line[idx:]
	}

	fields := strings.Fields(rest)
	if name == "" || len(fields) == 0 {
		return "", nil, "", false
	}
	return name, labels, fields[0], true
}

// parseLabels, '{' sonrasındaki label bloğunu quote-aware okur.
// Dönen end, kapanan '}' karakterinden sonraki index'tir.
func parseLabels(s string) (map[string]string, int, bool) {
	labels := make(map[string]string)
	i := 0

	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == ',') {
			i++
		}
		if i < len(s) && s[i] == '}' {
			return labels, i + 1, true
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, 0, false
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 1
		if i >= len(s) || s[i] != '"' {
			return nil, 0, false
		}
		i++

		var b strings.Builder
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				switch s[i+1] {
				case 'n':
					b.WriteByte('\n')
				default:
					b.WriteByte(s[i+1])
				}
				i += 2
				continue
			}
			if c == '"' {
				closed = true
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
		if !closed || key == "" {
			return nil, 0, false
		}
		labels[key] = b.String()
	}

	return nil, 0, false
}
