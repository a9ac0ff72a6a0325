package masking

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedSecretValue is the replacement string for masked Kubernetes Secret data values.
const MaskedSecretValue = "[MASKED_SECRET_DATA]"

var (
	yamlSecretPattern = regexp.MustCompile(`(?m)^kind:\s*Secret(List)?\s*$`)
	jsonSecretPattern = regexp.MustCompile(`"kind"\s*:\s*"Secret(List)?"`)
)

// KubernetesSecretMasker masks data/stringData fields in Kubernetes Secret
// resources while leaving ConfigMaps and other resource kinds untouched.
// Handles single resources, List/SecretList wrappers, multi-document YAML,
// and Secret JSON embedded in annotations.
type KubernetesSecretMasker struct{}

func (m *KubernetesSecretMasker) Name() string { return "kubernetes_secret" }

// AppliesTo is a cheap pre-check so non-Secret payloads skip parsing entirely.
func (m *KubernetesSecretMasker) AppliesTo(data string) bool {
	if !strings.Contains(data, "Secret") {
		return false
	}
	return yamlSecretPattern.MatchString(data) || jsonSecretPattern.MatchString(data)
}

// Mask detects JSON vs YAML and applies the appropriate parser. Returns the
// original data unchanged when parsing fails or nothing needed masking.
func (m *KubernetesSecretMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)

	// JSON first when the input looks like JSON, otherwise the YAML parser
	// would consume it and re-serialize as YAML.
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}

	if masked := m.maskYAML(data); masked != data {
		return masked
	}

	return data
}

// maskYAML parses multi-document YAML and masks Secret resources.
func (m *KubernetesSecretMasker) maskYAML(data string) string {
	decoder := yaml.NewDecoder(strings.NewReader(data))
	var documents []map[string]any
	anySecret := false

	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return data
		}
		if doc == nil {
			continue
		}

		if maskResource(doc) {
			anySecret = true
		}

		documents = append(documents, doc)
	}

	if !anySecret || len(documents) == 0 {
		return data
	}

	// Re-serialize preserving multi-document boundaries
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	for _, doc := range documents {
		if err := encoder.Encode(doc); err != nil {
			return data
		}
	}
	if err := encoder.Close(); err != nil {
		return data
	}

	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}

	return result
}

// maskJSON parses a JSON object and masks Secret resources.
func (m *KubernetesSecretMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}

	if !maskResource(obj) {
		return data
	}

	// Indentation matches typical kubectl -o json output
	result, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}

	output := string(result)
	if strings.HasSuffix(data, "\n") {
		output += "\n"
	}

	return output
}

// maskResource masks a parsed resource in place: a Secret directly, or the
// Secret items inside a List/SecretList wrapper. Returns true if anything
// was masked. List wrappers go item by item so per-item annotations get
// masked too.
func maskResource(resource map[string]any) bool {
	if isKubernetesSecret(resource) {
		maskSecretFields(resource)
		maskAnnotationSecrets(resource)
		return true
	}
	if isKubernetesList(resource) {
		return maskListItems(resource)
	}
	return false
}

// maskListItems masks Secret items within a List resource.
func maskListItems(resource map[string]any) bool {
	items, ok := resource["items"].([]any)
	if !ok {
		return false
	}

	anyMasked := false
	for _, item := range items {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if isKubernetesSecret(itemMap) {
			maskSecretFields(itemMap)
			maskAnnotationSecrets(itemMap)
			anyMasked = true
		}
	}

	return anyMasked
}

func isKubernetesSecret(resource map[string]any) bool {
	kind, ok := resource["kind"].(string)
	return ok && kind == "Secret"
}

func isKubernetesList(resource map[string]any) bool {
	kind, ok := resource["kind"].(string)
	if !ok {
		return false
	}
	return kind == "List" || strings.HasSuffix(kind, "List")
}

// maskSecretFields replaces the entire "data" and "stringData" sections with
// the masked placeholder. Replacing the whole section rather than individual
// values keeps key names from leaking what the secret contains.
func maskSecretFields(resource map[string]any) {
	for _, field := range []string{"data", "stringData"} {
		if _, ok := resource[field]; ok {
			resource[field] = MaskedSecretValue
		}
	}
}

// maskAnnotationSecrets checks annotations for embedded JSON containing Secret
// data. kubectl.kubernetes.io/last-applied-configuration often carries a full
// JSON copy of the Secret.
func maskAnnotationSecrets(resource map[string]any) {
	metadata, ok := resource["metadata"].(map[string]any)
	if !ok {
		return
	}

	annotations, ok := metadata["annotations"].(map[string]any)
	if !ok {
		return
	}

	for key, val := range annotations {
		strVal, ok := val.(string)
		if !ok || !strings.Contains(strVal, "Secret") {
			continue
		}

		var embedded map[string]any
		if err := json.Unmarshal([]byte(strVal), &embedded); err != nil {
			continue
		}

		if isKubernetesSecret(embedded) {
			maskSecretFields(embedded)
			masked, err := json.Marshal(embedded)
			if err != nil {
				continue
			}
			annotations[key] = string(masked)
		}
	}
}
