// Package gotreesitter implements parserapi.Parser for Go source,
// using tree-sitter's Go grammar to extract top-level declarations and
// import/call targets as raw edges.
package gotreesitter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/fenwick-labs/codegraph/internal/idcodec"
	"github.com/fenwick-labs/codegraph/internal/types"
	"github.com/fenwick-labs/codegraph/pkg/parserapi"
)

// query captures the declarations and references this parser extracts
// from a Go file, grounded on the teacher's setupGo query shape
// (internal/parser/parser_language_setup.go) plus call_expression and
// import_spec captures for §6's edge contract.
const query = `
(function_declaration name: (identifier) @function.name) @function
(method_declaration
    receiver: (parameter_list) @method.receiver
    name: (field_identifier) @method.name) @method
(type_declaration
    (type_spec name: (type_identifier) @type.name)) @type
(const_declaration
    (const_spec name: (identifier) @const.name)) @const
(var_declaration
    (var_spec name: (identifier) @var.name)) @var
(import_spec path: (interpreted_string_literal) @import.path) @import
(call_expression function: (_) @call.target) @call
`

// Parser implements parserapi.Parser for types.LanguageGo.
type Parser struct {
	projectID string
	lang      *tree_sitter.Language
	query     *tree_sitter.Query
}

// New returns a Go parser. projectID is stamped onto every CodeNode
// this parser produces, matching NodeID derivation's requirement that
// (projectID, filePath, startLine, startCol, name, kind) be stable.
func New(projectID string) (*Parser, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	q, qErr := tree_sitter.NewQuery(lang, query)
	if q == nil {
		return nil, fmt.Errorf("gotreesitter: compile query: %w", qErr)
	}
	return &Parser{projectID: projectID, lang: lang, query: q}, nil
}

func (p *Parser) Capabilities() parserapi.Capability {
	return parserapi.CapParse | parserapi.CapEnumerateIgnore
}

func (p *Parser) Language() types.Language { return types.LanguageGo }

// EnumerateIgnore reports the paths every Go parser conventionally
// skips, vendor trees and generated protobuf/mock files, the same
// default the teacher's include/exclude config documents for Go.
func (p *Parser) EnumerateIgnore(root string) ([]string, error) {
	return []string{
		"vendor/**",
		"**/*_test.go",
		"**/*.pb.go",
		"**/mock_*.go",
	}, nil
}

// Parse extracts top-level Go declarations as CodeNode values and
// import paths / call expressions as raw edges. Node and method
// bodies are not walked beyond their header for symbol extraction —
// deeper call-graph detail is a matter for a richer grammar query, not
// this contract.
func (p *Parser) Parse(ctx context.Context, filePath string, content []byte) (parserapi.ParseResult, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(p.lang); err != nil {
		return parserapi.ParseResult{}, fmt.Errorf("gotreesitter: set language: %w", err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return parserapi.ParseResult{}, fmt.Errorf("gotreesitter: parse returned no tree for %s", filePath)
	}
	defer tree.Close()

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(p.query, tree.RootNode(), content)
	captureNames := p.query.CaptureNames()

	var result parserapi.ParseResult
	var currentFuncID types.NodeID
	haveCurrentFunc := false

	for {
		match := matches.Next()
		if match == nil {
			break
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		names := make(map[string]string, 4)
		for _, c := range match.Captures {
			name := captureNames[c.Index]
			if strings.HasSuffix(name, ".name") || strings.HasSuffix(name, ".path") || strings.HasSuffix(name, ".target") {
				names[name] = string(content[c.Node.StartByte():c.Node.EndByte()])
			}
		}

		for _, c := range match.Captures {
			node := c.Node
			name := captureNames[c.Index]
			start := node.StartPosition()
			end := node.EndPosition()

			switch name {
			case "function":
				fn := names["function.name"]
				id := idcodec.DeriveNodeID(p.projectID, filePath, int(start.Row)+1, int(start.Column)+1, fn, types.KindFunction)
				result.Nodes = append(result.Nodes, types.CodeNode{
					ID: id, ProjectID: p.projectID, Name: fn, Kind: types.KindFunction,
					Language: types.LanguageGo, FilePath: filePath,
					StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1,
					StartCol: int(start.Column) + 1, EndCol: int(end.Column) + 1,
				})
				currentFuncID, haveCurrentFunc = id, true
			case "method":
				fn := names["method.name"]
				id := idcodec.DeriveNodeID(p.projectID, filePath, int(start.Row)+1, int(start.Column)+1, fn, types.KindMethod)
				result.Nodes = append(result.Nodes, types.CodeNode{
					ID: id, ProjectID: p.projectID, Name: fn, Kind: types.KindMethod,
					Language: types.LanguageGo, FilePath: filePath,
					StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1,
					StartCol: int(start.Column) + 1, EndCol: int(end.Column) + 1,
				})
				currentFuncID, haveCurrentFunc = id, true
			case "type":
				tn := names["type.name"]
				id := idcodec.DeriveNodeID(p.projectID, filePath, int(start.Row)+1, int(start.Column)+1, tn, types.KindStruct)
				result.Nodes = append(result.Nodes, types.CodeNode{
					ID: id, ProjectID: p.projectID, Name: tn, Kind: types.KindStruct,
					Language: types.LanguageGo, FilePath: filePath,
					StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1,
					StartCol: int(start.Column) + 1, EndCol: int(end.Column) + 1,
				})
			case "const":
				cn := names["const.name"]
				result.Nodes = append(result.Nodes, types.CodeNode{
					ID:       idcodec.DeriveNodeID(p.projectID, filePath, int(start.Row)+1, int(start.Column)+1, cn, types.KindConstant),
					ProjectID: p.projectID, Name: cn, Kind: types.KindConstant, Language: types.LanguageGo,
					FilePath: filePath, StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1,
					StartCol: int(start.Column) + 1, EndCol: int(end.Column) + 1,
				})
			case "var":
				vn := names["var.name"]
				result.Nodes = append(result.Nodes, types.CodeNode{
					ID:       idcodec.DeriveNodeID(p.projectID, filePath, int(start.Row)+1, int(start.Column)+1, vn, types.KindVariable),
					ProjectID: p.projectID, Name: vn, Kind: types.KindVariable, Language: types.LanguageGo,
					FilePath: filePath, StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1,
					StartCol: int(start.Column) + 1, EndCol: int(end.Column) + 1,
				})
			case "import":
				importPath := strings.Trim(names["import.path"], `"`)
				result.Edges = append(result.Edges, parserapi.RawEdge{
					FromID: fileHeaderID(p.projectID, filePath),
					Target: importPath,
					Kind:   types.EdgeImports,
				})
			case "call":
				if !haveCurrentFunc {
					continue
				}
				target := names["call.target"]
				if target == "" {
					continue
				}
				result.Edges = append(result.Edges, parserapi.RawEdge{
					FromID: currentFuncID,
					Target: target,
					Kind:   types.EdgeCalls,
				})
			}
		}
	}

	return result, nil
}

// fileHeaderID derives a stable node id for a file's own import-edge
// source, since import statements are not attributed to any one
// function. Kind KindModule keeps it distinguishable from real symbol
// nodes sharing the same file.
func fileHeaderID(projectID, filePath string) types.NodeID {
	return idcodec.DeriveNodeID(projectID, filePath, 0, 0, filepath.Base(filePath), types.KindModule)
}
