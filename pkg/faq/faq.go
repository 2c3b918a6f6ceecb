package faq

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is a single question shown on the public help page.
type Entry struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category" json:"category"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
	Order    int    `yaml:"order" json:"order"`
	Active   *bool  `yaml:"active,omitempty" json:"-"`
}

// Category summarises how many active entries a category holds.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type document struct {
	FAQs []Entry `yaml:"faqs"`
}

// Catalog is an immutable, ordered FAQ collection.
type Catalog struct {
	entries []Entry
}

// Load reads the catalog at path. A missing file yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read faq file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document of the form `faqs: [...]`.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode faq yaml: %w", err)
	}
	entries := make([]Entry, 0, len(doc.FAQs))
	for i, entry := range doc.FAQs {
		if entry.Active != nil && !*entry.Active {
			continue
		}
		entry.Category = strings.TrimSpace(entry.Category)
		entry.Question = strings.TrimSpace(entry.Question)
		entry.Answer = strings.TrimSpace(entry.Answer)
		if entry.Question == "" || entry.Answer == "" {
			return nil, fmt.Errorf("faq entry %d: question and answer are required", i)
		}
		if entry.Category == "" {
			entry.Category = "General"
		}
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("faq-%d", i+1)
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].Order < entries[j].Order
	})
	return &Catalog{entries: entries}, nil
}

// List returns entries, optionally restricted to a category (case-insensitive).
func (c *Catalog) List(category string) []Entry {
	category = strings.TrimSpace(category)
	result := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if category != "" && !strings.EqualFold(entry.Category, category) {
			continue
		}
		result = append(result, entry)
	}
	return result
}

// Categories lists distinct categories in display order.
func (c *Catalog) Categories() []Category {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, entry := range c.entries {
		if _, seen := counts[entry.Category]; !seen {
			order = append(order, entry.Category)
		}
		counts[entry.Category]++
	}
	result := make([]Category, 0, len(order))
	for _, name := range order {
		result = append(result, Category{Name: name, Count: counts[name]})
	}
	return result
}

// Default returns the catalog shipped with the service.
func Default() *Catalog {
	catalog, err := Parse([]byte(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return catalog
}

const defaultCatalog = `
faqs:
  - id: account-login
    category: Account
    order: 1
    question: I cannot log in with my school ID. What should I do?
    answer: Make sure you are using the school ID printed on your registration card. If it still fails, submit a support request and include your department.
  - id: account-details
    category: Account
    order: 2
    question: My name or department is wrong on my voter profile.
    answer: Submit a support request with your correct details. An administrator will verify them against the registrar records.
  - id: voting-window
    category: Voting
    order: 1
    question: When can I cast my vote?
    answer: Ballots are available only while the election is open. The voting window is shown on your dashboard.
  - id: voting-change
    category: Voting
    order: 2
    question: Can I change my vote after submitting?
    answer: No. Once a ballot is submitted it is final.
  - id: support-response
    category: Support
    order: 1
    question: How long until someone answers my support request?
    answer: Requests are reviewed in the order they arrive. You can submit one request every five minutes.
`
