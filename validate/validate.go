// Command validate provides a small CLI that validates document template
// JSON files in the ../templates directory (or the directory given as the
// first argument). It checks:
//   - JSON structure and required fields (language, name, content)
//   - The language is one the language picker offers
//   - The file is named <language>.json so the template manager can find it
//   - No two files claim the same language
//
// Languages without a template are reported; they fall back to the built-in
// document.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/codecast/collab/templates"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File     string
	Language string
	Valid    bool
	Errors   []string
}

// validateTemplate loads and validates a single template file.
func validateTemplate(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	t, err := templates.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		switch {
		case errors.Is(err, templates.ErrTemplateNotFound):
			result.Errors = append(result.Errors, "File does not exist")
		case errors.Is(err, templates.ErrInvalidTemplate):
			result.Errors = append(result.Errors, strings.TrimPrefix(err.Error(), templates.ErrInvalidTemplate.Error()+": "))
		default:
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	result.Language = strings.ToLower(t.Language)

	want := result.Language + ".json"
	if result.File != want {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("File should be named %s for language %q", want, t.Language))
		return result
	}

	result.Errors = append(result.Errors,
		fmt.Sprintf("✓ %s (%s), %d bytes", t.Name, result.Language, len(t.Content)))
	return result
}

// validateDir validates every *.json file in dir and reports languages that
// are claimed twice or have no template.
func validateDir(dir string) ([]ValidationResult, []string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("error finding template files: %w", err)
	}
	sort.Strings(files)

	results := make([]ValidationResult, 0, len(files))
	seen := map[string]string{}
	for _, file := range files {
		result := validateTemplate(file)
		if result.Language != "" {
			if prev, ok := seen[result.Language]; ok {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Language %s is already provided by %s", result.Language, prev))
			} else if result.Valid {
				seen[result.Language] = result.File
			}
		}
		results = append(results, result)
	}

	var missing []string
	for _, lang := range templates.Languages {
		if _, ok := seen[lang]; !ok {
			missing = append(missing, lang)
		}
	}
	return results, missing, nil
}

// main validates the template directory, printing a concise report and
// exiting with non-zero status if any file is invalid.
func main() {
	dir := "../templates"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	results, missing, err := validateDir(dir)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	allValid := true
	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if len(missing) > 0 {
		fmt.Printf("ℹ️  No template for: %s (built-in document is used)\n", strings.Join(missing, ", "))
	}
	if allValid {
		fmt.Println("✅ All templates are valid!")
	} else {
		fmt.Println("❌ Some templates have errors")
		os.Exit(1)
	}
}
