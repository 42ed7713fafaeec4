package wiki

import (
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/wangyi68/zenox/internal/storage"
)

// ErrHeaderMismatch is returned when the wiki table layout changed
var ErrHeaderMismatch = errors.New("wiki code table headers do not match expected layout")

// rowHeaders is the column layout the parser understands
var rowHeaders = []string{"Code", "Server", "Rewards", "Duration"}

// Row is one row of the wiki code table, raw cell text per column
type Row struct {
	Code     string
	Server   string
	Rewards  string
	Duration string
}

// ParseCodeTable extracts the first table from the page and checks its
// header row against the expected column layout.
func ParseCodeTable(r io.Reader) ([]Row, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	table := findFirstTable(doc)
	if table == nil {
		return nil, ErrHeaderMismatch
	}

	var headers []string
	var rows []Row
	for _, tr := range findAll(table, "tr") {
		cells := cellTexts(tr)
		if len(cells) == 0 {
			continue
		}
		if headers == nil {
			headers = cells
			if len(headers) != len(rowHeaders) {
				return nil, ErrHeaderMismatch
			}
			for i, h := range rowHeaders {
				if !strings.EqualFold(strings.TrimSpace(headers[i]), h) {
					return nil, ErrHeaderMismatch
				}
			}
			continue
		}
		if len(cells) != len(rowHeaders) {
			continue
		}
		rows = append(rows, Row{
			Code:     cells[0],
			Server:   cells[1],
			Rewards:  cells[2],
			Duration: cells[3],
		})
	}
	if headers == nil {
		return nil, ErrHeaderMismatch
	}
	return rows, nil
}

func findFirstTable(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "table" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findFirstTable(c); t != nil {
			return t
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

// cellTexts returns the flattened text of each th/td in a row
func cellTexts(tr *html.Node) []string {
	var out []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			out = append(out, strings.TrimSpace(nodeText(c)))
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Candidate is a filtered code-table row ready for registration: the code
// strings of the row plus the parsed reward lines.
type Candidate struct {
	Codes   []string
	IsChina bool
	Rewards []storage.Reward
}

var (
	// blockedPhrases are promotional/marketing rows, matched as
	// case-insensitive substrings of the cleaned code cell
	blockedPhrases = []string{
		"prime", "crucialgames", "steelseries", "alienware",
		"intel gaming access", "amd rewards", "giveaway)", "bundle",
		"twitch", "discord", "hoyofest", "hoyo fest",
	}

	// blockedNames are program names excluded outright
	blockedNames = []string{"HoYo FEST 2024", "Glad Tidings From Afar"}

	// allowedServers are the region labels the table may carry
	allowedServers = []string{
		"All", "America, Europe, Asia, TW/HK/Macao", "China",
		"America", "Asia", "Europe", "TW/HK/Macao",
	}

	footnoteRe = regexp.MustCompile(`\[.*`)
	rewardRe   = regexp.MustCompile(`([\w\s\-'()]+) ×(\d+(?:,\d{3})*)`)
)

// CleanCodeCell strips footnote markers and the wiki's "Quick Redeem"
// suffix from the code cell
func CleanCodeCell(cell string) string {
	s := footnoteRe.ReplaceAllString(cell, "")
	s = strings.ReplaceAll(s, "Quick Redeem", "")
	return strings.TrimRight(s, " \t\n")
}

// Blocked reports whether the cleaned code cell is a known promotional row
func Blocked(names string) bool {
	lower := strings.ToLower(names)
	for _, phrase := range blockedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, name := range blockedNames {
		if names == name {
			return true
		}
	}
	return false
}

// FilterRow turns a raw table row into a candidate, or nil when the row is
// promotional noise, expired, malformed, or for an unknown server.
func FilterRow(row Row) *Candidate {
	names := CleanCodeCell(row.Code)
	if names == "" || Blocked(names) {
		return nil
	}
	if strings.Contains(row.Duration, "Expired:") {
		return nil
	}
	codes := strings.Split(names, " ")
	for _, code := range codes {
		if !isAlnum(code) {
			return nil
		}
	}
	if !serverAllowed(row.Server) {
		return nil
	}
	return &Candidate{
		Codes:   codes,
		IsChina: row.Server == "China",
		Rewards: ParseRewards(row.Rewards),
	}
}

// ParseRewards extracts "Name ×N" pairs from the rewards cell. Amounts may
// carry comma thousands separators.
func ParseRewards(cell string) []storage.Reward {
	cell = strings.ReplaceAll(cell, `"`, "")
	matches := rewardRe.FindAllStringSubmatch(cell, -1)
	var out []storage.Reward
	for _, m := range matches {
		amount, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
		if err != nil {
			continue
		}
		out = append(out, storage.Reward{
			Name:   strings.TrimLeft(m[1], " \t\n"),
			Amount: amount,
		})
	}
	return out
}

func serverAllowed(server string) bool {
	for _, s := range allowedServers {
		if server == s {
			return true
		}
	}
	return false
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
