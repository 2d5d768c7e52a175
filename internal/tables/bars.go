package tables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ScaleBars appends a value bar after every cell element carrying data-value. Each
// bar's width is the value as a percentage of the page maximum, at least 1%.
func ScaleBars(page *Page) {
	if len(page.Data) == 0 {
		return
	}

	var markup strings.Builder
	markup.WriteString("<table><tbody>")
	for _, row := range page.Data {
		markup.WriteString("<tr>")
		for _, cell := range row {
			markup.WriteString("<td>")
			markup.WriteString(cell)
			markup.WriteString("</td>")
		}
		markup.WriteString("</tr>")
	}
	markup.WriteString("</tbody></table>")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup.String()))
	if err != nil {
		return
	}

	bars := doc.Find("div[data-value]")
	if bars.Length() == 0 {
		return
	}

	values := make([]float64, bars.Length())
	top := 0.0
	bars.Each(func(i int, s *goquery.Selection) {
		raw, _ := s.Attr("data-value")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			value = 0
		}
		values[i] = value
		if i == 0 || value > top {
			top = value
		}
	})

	bars.Each(func(i int, s *goquery.Selection) {
		width := 1.0
		if top > 0 {
			width = 100 * values[i] / top
		}
		if width < 1 {
			width = 1
		}
		s.AfterHtml(fmt.Sprintf(`<div class="value-bar" style="width: %s%%"></div>`, strconv.FormatFloat(width, 'f', -1, 64)))
	})

	doc.Find("tbody tr").Each(func(i int, tr *goquery.Selection) {
		if i >= len(page.Data) {
			return
		}
		tr.Find("td").Each(func(j int, td *goquery.Selection) {
			if j >= len(page.Data[i]) {
				return
			}
			if cell, err := td.Html(); err == nil {
				page.Data[i][j] = cell
			}
		})
	})
}
