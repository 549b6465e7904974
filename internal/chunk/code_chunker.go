package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CodeChunkerOptions configures the code chunker behavior.
type CodeChunkerOptions struct {
	MaxChunkBytes int // target chunk size in bytes (default DefaultMaxChunkBytes)
	OverlapBytes  int // overlap between adjacent chunks when splitting (default DefaultOverlapBytes)
}

// CodeChunker implements the Splitter's (C3) syntax-aware strategy: it emits
// chunks along top-level declaration boundaries, concatenating small
// siblings to approach MaxChunkBytes without exceeding it, and falls back to
// a character-window strategy when no grammar is available for the file's
// language (spec §4.3).
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkBytes == 0 {
		opts.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if opts.OverlapBytes == 0 {
		opts.OverlapBytes = DefaultOverlapBytes
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles with a
// syntax-aware grammar.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into semantic chunks (spec §4.3's `split` operation).
// Empty files yield zero chunks. Every returned chunk satisfies
// start_line >= 1, end_line >= start_line, and non-empty content.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	if _, supported := c.registry.GetByName(file.Language); !supported {
		return c.chunkByWindow(file)
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.chunkByWindow(file)
	}

	fileContext := c.extractFileContext(tree, file.Content, file.Language)
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	topLevel := c.findTopLevelSymbolNodes(tree, file.Language)
	if len(topLevel) == 0 {
		return c.chunkByWindow(file)
	}

	now := time.Now()
	return c.groupSiblings(topLevel, tree, file, fileContext, now), nil
}

type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findTopLevelSymbolNodes finds symbol-defining nodes that are direct
// children of the file root, preserving source order (spec §4.3: "top-level
// declaration boundaries").
func (c *CodeChunker) findTopLevelSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return nil
	}

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	var out []*symbolNodeInfo
	for _, n := range tree.Root.Children {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				out = append(out, &symbolNodeInfo{node: n, symbol: sym})
				continue
			}
		}
		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			if sym := c.extractSymbol(n, tree, symType, language); sym != nil {
				out = append(out, &symbolNodeInfo{node: n, symbol: sym})
			}
		}
	}
	return out
}

func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}
	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: c.extractor.extractDocComment(n, tree.Source, language),
		Signature:  c.extractor.extractSignature(n, tree.Source, symType, language),
	}
}

// groupSiblings walks topLevel in source order, concatenating consecutive
// small declarations into a single chunk until MaxChunkBytes would be
// exceeded, then starts a new group. A single declaration already larger
// than MaxChunkBytes is split on its own via splitLargeSymbol.
func (c *CodeChunker) groupSiblings(topLevel []*symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	var chunks []*Chunk
	var group []*symbolNodeInfo
	groupBytes := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		chunks = append(chunks, c.chunkFromGroup(group, tree, file, fileContext, now))
		group = nil
		groupBytes = 0
	}

	for _, info := range topLevel {
		size := int(info.node.EndByte - info.node.StartByte)

		if size > c.options.MaxChunkBytes {
			flush()
			chunks = append(chunks, c.splitLargeSymbol(info, tree, file, fileContext, now)...)
			continue
		}

		if groupBytes > 0 && groupBytes+size > c.options.MaxChunkBytes {
			flush()
		}

		group = append(group, info)
		groupBytes += size
	}
	flush()

	return chunks
}

// chunkFromGroup builds one Chunk spanning every node in group, which must
// be contiguous in source order (it was accumulated that way).
func (c *CodeChunker) chunkFromGroup(group []*symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) *Chunk {
	first, last := group[0].node, group[len(group)-1].node
	startByte := first.StartByte
	if group[0].symbol.DocComment != "" {
		startByte = docCommentStart(tree.Source, first.StartByte, group[0].symbol.DocComment)
	}
	rawContent := string(tree.Source[startByte:last.EndByte])

	symbols := make([]*Symbol, 0, len(group))
	for _, g := range group {
		symbols = append(symbols, g.symbol)
	}

	startLine := int(first.StartPoint.Row) + 1 - strings.Count(string(tree.Source[startByte:first.StartByte]), "\n")
	endLine := int(last.EndPoint.Row) + 1

	return &Chunk{
		ID:          generateChunkID(file.Path, startLine, endLine, rawContent),
		FilePath:    file.Path,
		Content:     combineContextAndContent(fileContext, rawContent),
		RawContent:  rawContent,
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Language:    file.Language,
		StartLine:   startLine,
		EndLine:     endLine,
		Symbols:     symbols,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// docCommentStart walks source backward from nodeStart to include the
// immediately preceding doc comment lines.
func docCommentStart(source []byte, nodeStart uint32, docComment string) uint32 {
	lineStart := int(nodeStart)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}
	return uint32(lineStart)
}

// splitLargeSymbol splits a single oversized declaration using the
// character-window strategy over its own source range.
func (c *CodeChunker) splitLargeSymbol(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	content := string(tree.Source[node.StartByte:node.EndByte])
	return c.splitByBytes(content, info.symbol, file, fileContext, now, int(node.StartPoint.Row)+1)
}

// splitByBytes splits content into MaxChunkBytes windows with OverlapBytes
// overlap, breaking on line boundaries so StartLine/EndLine stay accurate.
func (c *CodeChunker) splitByBytes(content string, symbol *Symbol, file *FileInput, fileContext string, now time.Time, startLine int) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	lineBytes := make([]int, len(lines))
	for i, l := range lines {
		lineBytes[i] = len(l) + 1
	}

	var chunks []*Chunk
	i := 0
	for i < len(lines) {
		end, size := i, 0
		for end < len(lines) && (size == 0 || size+lineBytes[end] <= c.options.MaxChunkBytes) {
			size += lineBytes[end]
			end++
		}
		if end == i {
			end = i + 1 // always make progress even for one oversized line
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		chunkStartLine := startLine + i
		chunkEndLine := startLine + end - 1

		subSymbol := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", symbol.Name, len(chunks)+1),
			Type:      symbol.Type,
			StartLine: chunkStartLine,
			EndLine:   chunkEndLine,
		}
		symbols := []*Symbol{subSymbol}
		if len(chunks) == 0 {
			symbols = append(symbols, &Symbol{
				Name: symbol.Name, Type: symbol.Type,
				StartLine: symbol.StartLine, EndLine: symbol.EndLine,
			})
		}

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, chunkStartLine, chunkEndLine, chunkContent),
			FilePath:    file.Path,
			Content:     combineContextAndContent(fileContext, chunkContent),
			RawContent:  chunkContent,
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   chunkStartLine,
			EndLine:     chunkEndLine,
			Symbols:     symbols,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if end >= len(lines) {
			break
		}

		overlapBack := 0
		next := end
		for next > i && overlapBack < c.options.OverlapBytes {
			next--
			overlapBack += lineBytes[next]
		}
		if next <= i {
			next = end
		}
		i = next
	}

	return chunks
}

func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string
	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}
	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}
	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

// chunkByWindow is the character-window fallback strategy used for
// languages without a grammar, or files whose grammar yields no top-level
// declarations (spec §4.3).
func (c *CodeChunker) chunkByWindow(file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	now := time.Now()
	chunks := windowChunks(content, c.options.MaxChunkBytes, c.options.OverlapBytes, 1, func(chunkContent string, startLine, endLine int) *Chunk {
		return &Chunk{
			ID:          generateChunkID(file.Path, startLine, endLine, chunkContent),
			FilePath:    file.Path,
			Content:     chunkContent,
			RawContent:  chunkContent,
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   startLine,
			EndLine:     endLine,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	})
	return chunks, nil
}

// windowChunks implements the character-window splitting algorithm used by
// the code fallback (chunkByWindow): ~maxBytes per chunk with
// ~overlapBytes of overlap, broken on line boundaries.
func windowChunks(content string, maxBytes, overlapBytes, baseLine int, build func(content string, startLine, endLine int) *Chunk) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}
	lineBytes := make([]int, len(lines))
	for i, l := range lines {
		lineBytes[i] = len(l) + 1
	}

	var chunks []*Chunk
	i := 0
	for i < len(lines) {
		end, size := i, 0
		for end < len(lines) && (size == 0 || size+lineBytes[end] <= maxBytes) {
			size += lineBytes[end]
			end++
		}
		if end == i {
			end = i + 1
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(chunkContent) != "" {
			chunks = append(chunks, build(chunkContent, baseLine+i, baseLine+end-1))
		}

		if end >= len(lines) {
			break
		}

		overlapBack, next := 0, end
		for next > i && overlapBack < overlapBytes {
			next--
			overlapBack += lineBytes[next]
		}
		if next <= i {
			next = end
		}
		i = next
	}
	return chunks
}

// generateChunkID derives the chunk document id from (relative_path,
// start_line, end_line, content) per the persisted chunk document format:
// identical spans produce identical ids, making reinsertion idempotent.
func generateChunkID(relPath string, startLine, endLine int, content string) string {
	input := fmt.Sprintf("%s:%d:%d:%s", relPath, startLine, endLine, content)
	hash := sha256.Sum256([]byte(input))
	return "chunk_" + hex.EncodeToString(hash[:])[:16]
}

// combineContextAndContent combines extracted file context and raw content
// into the full embeddable content.
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a language-appropriate file path
// marker so embedding models understand file location and scope.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
