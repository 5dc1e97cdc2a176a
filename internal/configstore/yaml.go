package configstore

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders the snapshot in the same shape as the JSON file,
// keeping category order.
func (s Snapshot) MarshalYAML() (any, error) {
	cats := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range s.Categories {
		tasks := c.Tasks
		if tasks == nil {
			tasks = []Task{}
		}
		var body yaml.Node
		if err := body.Encode(categoryBody{Color: c.Color, Tasks: tasks}); err != nil {
			return nil, fmt.Errorf("encode category %q: %w", c.Name, err)
		}
		cats.Content = append(cats.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name},
			&body,
		)
	}
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "categories"},
			cats,
		},
	}, nil
}
