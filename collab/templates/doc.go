// Package templates provides the starter documents a participant's editor
// is seeded with when the room has nothing cached for them.
//
// Templates are JSON files named after their language:
//
//	templates/python.json
//	{"language": "python", "name": "Python", "content": "# Start Your Code ..."}
//
// Usage:
//
//	manager, err := templates.NewManager("templates")
//	doc := manager.Content("python") // built-in default when missing
//
// Without a directory only the built-in "// Start Your Code ..." document
// is available.
package templates
