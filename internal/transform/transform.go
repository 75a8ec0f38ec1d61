// Package transform rewrites component modules into declarations that can be
// spliced into another module.
package transform

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/boblangley/artifact-forge/internal/types"
)

// GeneratedPrefix prefixes every inlined component identifier.
const GeneratedPrefix = "Generated_"

// FallbackIdentifier is used when a file base name sanitizes to nothing.
const FallbackIdentifier = "GeneratedComponent"

var (
	headerCommentPattern = regexp.MustCompile(`(?m)^[ \t]*//[ \t]*File:.*$`)
	importLinePattern    = regexp.MustCompile(`^\s*import\s+(?:[^;\n]*?\s*from\s*)?['"][^'"\n]+['"]\s*;?\s*$`)
	exportPattern        = regexp.MustCompile(`\bexport\s+`)

	defaultFuncPattern = regexp.MustCompile(`^default\s+(async\s+)?function\b\s*(\*?)\s*(?:[A-Za-z_$][\w$]*)?\s*\(`)
	bareDefaultPattern = regexp.MustCompile(`^default\s+`)
	defaultRefPattern  = regexp.MustCompile(`^default\s+([A-Za-z_$][\w$]*)[ \t]*;?[ \t]*(?:\n|$)`)
	namedFuncPattern   = regexp.MustCompile(`^(async\s+)?function\b\s*(\*?)\s*([A-Za-z_$][\w$]*)\s*\(`)
	constPattern       = regexp.MustCompile(`^const\s+([A-Za-z_$][\w$]*)\s*(:[^=\n]+?)?\s*=\s*`)

	typeAliasPatterns = []*regexp.Regexp{
		regexp.MustCompile(`:\s*FC\s*<`),
		regexp.MustCompile(`:\s*React\.FC\s*<`),
	}

	nonIdentPattern  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	scriptExtPattern = regexp.MustCompile(`\.(t|j)sx?$`)
)

// declKind is the shape of a recognized export declaration.
type declKind int

const (
	declDefaultFunc declKind = iota
	declBareDefault
	declNamedFunc
	declConst
)

// priority order for choosing the declaration bound to the generated name
var primaryOrder = []declKind{declDefaultFunc, declBareDefault, declNamedFunc, declConst}

type decl struct {
	kind  declKind
	start int // offset of "export"
	end   int // end of the matched head
	async string
	star  string
	annot string
	ident string // identifier declared by a named function or const
	ref   string // identifier named by "export default X;"
	stmt  int    // end of the whole "export default X;" statement
}

// GeneratedName derives the inline identifier for a component file.
func GeneratedName(filePath string) string {
	base := path.Base(strings.ReplaceAll(filePath, `\`, "/"))
	base = scriptExtPattern.ReplaceAllString(base, "")
	if base == "." || base == "/" {
		base = ""
	}
	return GeneratedPrefix + ToIdentifier(base)
}

// ToIdentifier replaces non-identifier characters with underscores.
func ToIdentifier(name string) string {
	ident := nonIdentPattern.ReplaceAllString(name, "_")
	if ident != "" && ident[0] >= '0' && ident[0] <= '9' {
		ident = "_" + ident
	}
	if ident == "" {
		return FallbackIdentifier
	}
	return ident
}

// Inline strips module boundaries from code and binds its primary export to
// generatedName. The result is wrapped in BEGIN/END INLINE COMPONENT markers.
// Nothing is type-checked; rewriting is textual.
func Inline(code, generatedName string) types.TransformResult {
	src := Declaration(code, generatedName)

	return types.TransformResult{
		InlineSource:  WrapBlock(generatedName, src),
		UsesTypeAlias: UsesTypeAlias(src),
	}
}

// Declaration returns the rewritten source without block markers.
func Declaration(code, generatedName string) string {
	src, _ := Bind(code, generatedName)
	return src
}

// Bind is Declaration that also reports whether an export was found and
// bound to generatedName.
func Bind(code, generatedName string) (string, bool) {
	src := stripHeaderComment(code)
	src = stripImports(src)
	src, bound := rewriteExports(src, generatedName)
	return strings.TrimSpace(src), bound
}

// UsesTypeAlias reports whether src annotates with FC or React.FC.
func UsesTypeAlias(src string) bool {
	for _, p := range typeAliasPatterns {
		if p.MatchString(src) {
			return true
		}
	}
	return false
}

// BeginMarker opens an injected block.
func BeginMarker(name string) string {
	return "// BEGIN INLINE COMPONENT: " + name
}

// EndMarker closes an injected block.
func EndMarker(name string) string {
	return "// END INLINE COMPONENT: " + name
}

// WrapBlock surrounds src with the block markers for name.
func WrapBlock(name, src string) string {
	return fmt.Sprintf("\n%s\n%s\n%s\n", BeginMarker(name), src, EndMarker(name))
}

func stripHeaderComment(code string) string {
	loc := headerCommentPattern.FindStringIndex(code)
	if loc == nil {
		return strings.TrimSpace(code)
	}
	return strings.TrimSpace(code[:loc[0]] + code[loc[1]:])
}

// stripImports drops single-line import statements. Multi-line import lists
// are left untouched.
func stripImports(src string) string {
	lines := strings.Split(src, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if importLinePattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func recognize(src string) []decl {
	var decls []decl
	for _, loc := range exportPattern.FindAllStringIndex(src, -1) {
		tail := src[loc[1]:]
		d := decl{start: loc[0]}

		switch {
		case defaultFuncPattern.MatchString(tail):
			m := defaultFuncPattern.FindStringSubmatchIndex(tail)
			d.kind = declDefaultFunc
			d.end = loc[1] + m[1]
			d.async = sub(tail, m, 1)
			d.star = sub(tail, m, 2)
		case bareDefaultPattern.MatchString(tail):
			m := bareDefaultPattern.FindStringIndex(tail)
			d.kind = declBareDefault
			d.end = loc[1] + m[1]
			if r := defaultRefPattern.FindStringSubmatchIndex(tail); r != nil {
				d.ref = sub(tail, r, 1)
				d.stmt = loc[1] + r[1]
			}
		case namedFuncPattern.MatchString(tail):
			m := namedFuncPattern.FindStringSubmatchIndex(tail)
			d.kind = declNamedFunc
			d.end = loc[1] + m[1]
			d.async = sub(tail, m, 1)
			d.star = sub(tail, m, 2)
			d.ident = sub(tail, m, 3)
		case constPattern.MatchString(tail):
			m := constPattern.FindStringSubmatchIndex(tail)
			d.kind = declConst
			d.end = loc[1] + m[1]
			d.ident = sub(tail, m, 1)
			d.annot = strings.TrimSpace(sub(tail, m, 2))
		default:
			continue
		}
		decls = append(decls, d)
	}
	return decls
}

func sub(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

// rewriteExports binds exactly one declaration to name. Every bare
// "export default" prefix is removed; further named exports are left alone.
// When "export default X;" names an exported declaration of X, that
// declaration is bound instead and the default statement is dropped.
func rewriteExports(src, name string) (string, bool) {
	decls := recognize(src)
	if len(decls) == 0 {
		return src, false
	}

	primary := -1
	for _, kind := range primaryOrder {
		for i, d := range decls {
			if d.kind == kind {
				primary = i
				break
			}
		}
		if primary >= 0 {
			break
		}
	}

	dropped := -1
	if p := decls[primary]; p.kind == declBareDefault && p.ref != "" {
		for i, d := range decls {
			if (d.kind == declNamedFunc || d.kind == declConst) && d.ident == p.ref {
				dropped, primary = primary, i
				break
			}
		}
	}

	var sb strings.Builder
	last := 0
	for i, d := range decls {
		sb.WriteString(src[last:d.start])
		if i == dropped {
			last = d.stmt
			continue
		}
		head := src[d.start:d.end]

		switch {
		case i == primary && (d.kind == declDefaultFunc || d.kind == declNamedFunc):
			sb.WriteString(d.async + "function" + d.star + " " + name + "(")
		case i == primary && d.kind == declBareDefault:
			sb.WriteString("const " + name + " = ")
		case i == primary && d.kind == declConst:
			if d.annot != "" {
				sb.WriteString("const " + name + d.annot + " = ")
			} else {
				sb.WriteString("const " + name + " = ")
			}
		case d.kind == declDefaultFunc || d.kind == declBareDefault:
			rest := head[len(exportPattern.FindString(head)):]
			sb.WriteString(bareDefaultPattern.ReplaceAllString(rest, ""))
		default:
			sb.WriteString(head)
		}
		last = d.end
	}
	sb.WriteString(src[last:])
	return sb.String(), true
}
