// Package scanner implements the File Walker (C2): it recursively
// enumerates the regular files under a root that carry a supported
// extension and are not excluded by the Ignore Resolver (C1).
package scanner

import "time"

// ContentType classifies a discovered file for downstream chunking (C3).
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
)

// FileInfo describes one file surfaced by Walk.
type FileInfo struct {
	Path        string // relative to root, '/'-separated
	AbsPath     string
	Size        int64
	ModTime     time.Time
	ContentType ContentType
	Language    string
}

// Result is streamed from Walk's channel.
type Result struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize bounds how large a single file may be before it is
// skipped (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExtensions are the mainstream source languages plus Markdown and
// notebooks that spec §4.2 names as the baseline supported-extensions set.
var DefaultExtensions = []string{
	".go", ".js", ".jsx", ".mjs", ".ts", ".tsx",
	".py", ".pyi",
	".rb", ".rs", ".java", ".kt", ".kts",
	".c", ".h", ".cpp", ".hpp", ".cc", ".cxx", ".cs",
	".swift", ".php", ".scala", ".ex", ".exs",
	".md", ".mdx", ".markdown", ".rst", ".txt",
	".ipynb",
	".json", ".yaml", ".yml", ".toml", ".xml", ".ini",
	".sh", ".bash", ".zsh",
	".sql", ".proto",
	"Dockerfile", "Makefile",
}

var languageMap = map[string]string{
	".go": "go", ".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript",
	".py": "python", ".pyi": "python",
	".rb": "ruby", ".rs": "rust", ".java": "java", ".kt": "kotlin", ".kts": "kotlin",
	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cc": "cpp", ".cxx": "cpp",
	".cs": "csharp", ".swift": "swift", ".php": "php", ".scala": "scala",
	".ex": "elixir", ".exs": "elixir",
	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst", ".txt": "text",
	".ipynb": "notebook",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".xml": "xml", ".ini": "ini",
	".sh": "shell", ".bash": "shell", ".zsh": "shell",
	".sql": "sql", ".proto": "protobuf",
	"Dockerfile": "dockerfile", "Makefile": "makefile",
}

var contentTypeMap = map[string]ContentType{
	"go": ContentTypeCode, "javascript": ContentTypeCode, "typescript": ContentTypeCode,
	"python": ContentTypeCode, "ruby": ContentTypeCode, "rust": ContentTypeCode,
	"java": ContentTypeCode, "kotlin": ContentTypeCode, "c": ContentTypeCode, "cpp": ContentTypeCode,
	"csharp": ContentTypeCode, "swift": ContentTypeCode, "php": ContentTypeCode, "scala": ContentTypeCode,
	"elixir": ContentTypeCode, "shell": ContentTypeCode, "sql": ContentTypeCode, "protobuf": ContentTypeCode,
	"notebook": ContentTypeCode,
	"markdown": ContentTypeMarkdown, "rst": ContentTypeMarkdown,
	"text": ContentTypeText,
	"json": ContentTypeConfig, "yaml": ContentTypeConfig, "toml": ContentTypeConfig,
	"xml": ContentTypeConfig, "ini": ContentTypeConfig, "dockerfile": ContentTypeConfig, "makefile": ContentTypeConfig,
}

// DetectLanguage derives a language tag, checking exact filename matches
// (Dockerfile, Makefile) before falling back to the extension.
func DetectLanguage(path string) string {
	if lang, ok := languageMap[baseName(path)]; ok {
		return lang
	}
	if lang, ok := languageMap[extension(path)]; ok {
		return lang
	}
	return ""
}

// DetectContentType derives the content classification from a language tag.
func DetectContentType(language string) ContentType {
	if ct, ok := contentTypeMap[language]; ok {
		return ct
	}
	return ContentTypeText
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
