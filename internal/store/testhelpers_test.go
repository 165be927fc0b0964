package store

import (
	"fmt"

	"github.com/sells-group/menu-cli/internal/metrics"
	"github.com/sells-group/menu-cli/internal/model"
)

var joes = model.BusinessDescriptor{Name: "Joe's Diner", City: "Springfield", Website: "joesdiner.com"}

// menuDoc builds a document whose sections hold perSection priced items each.
func menuDoc(perSection int, sections ...string) *model.MenuDocument {
	doc := model.EmptyDocument()
	for _, name := range sections {
		sec := model.Section{Name: name}
		for i := 0; i < perSection; i++ {
			sec.Items = append(sec.Items, model.Item{Name: fmt.Sprintf("%s %d", name, i+1), Price: model.Price(float64(10 + i))})
		}
		doc.Sections = append(doc.Sections, sec)
		doc.TopItems = append(doc.TopItems, sec.Items...)
	}
	doc.Metrics = metrics.Build(doc.Sections, doc.TopItems)
	doc.Sources = []model.Source{{URL: "https://joesdiner.com/menu"}}
	return doc
}
