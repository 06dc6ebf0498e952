package fileops

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"

	"slnsync/internal/evaluation"
	"slnsync/internal/solution"
)

var classTemplate = template.Must(template.New("class").Parse(`namespace {{.Namespace}};

public class {{.Name}}
{

}
`))

var projectTemplate = template.Must(template.New("project").Parse(`name = "{{.Name}}"
language = "{{.Language}}"
{{- if .Target}}
target = "{{.Target}}"
{{- end}}
`))

type classData struct {
	Namespace string
	Name      string
}

type projectData struct {
	Name     string
	Language string
	Target   string
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ClassSource renders an empty class named after fileName.
func ClassSource(namespace, fileName string) ([]byte, error) {
	name := evaluation.Identifier(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
	return render(classTemplate, classData{Namespace: namespace, Name: name})
}

// Namespace computes the namespace for sources placed in parent: the
// project's root namespace followed by the folder names down to parent.
func Namespace(sol *solution.Solution, parent solution.Container, rootNamespace func(projectPath string) (string, bool)) string {
	var segments []string
	var project *solution.Project
	nodes := append([]solution.Node{parent}, sol.Ancestors(parent)...)
	for _, n := range nodes {
		switch n := n.(type) {
		case *solution.Folder:
			segments = append(segments, evaluation.Identifier(n.Name()))
		case *solution.Project:
			project = n
		}
		if project != nil {
			break
		}
	}

	root := ""
	if project != nil {
		if rootNamespace != nil {
			root, _ = rootNamespace(project.Path())
		}
		if root == "" {
			root = evaluation.Identifier(project.Name())
		}
	}
	parts := make([]string, 0, len(segments)+1)
	if root != "" {
		parts = append(parts, root)
	}
	for i := len(segments) - 1; i >= 0; i-- {
		parts = append(parts, segments[i])
	}
	return strings.Join(parts, ".")
}
