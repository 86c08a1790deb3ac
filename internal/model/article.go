package model

// RawArticle is a single news search result as returned by the search
// provider. Nothing about it is guaranteed unique; identity is established
// only by Link, and articles without a link have no identity at all.
type RawArticle struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// Category is the fixed classification taxonomy for articles.
type Category string

const (
	CategoryCocoa      Category = "cocoa"
	CategoryShea       Category = "shea"
	CategoryCashew     Category = "cashew"
	CategoryCoffee     Category = "coffee"
	CategoryGeneralAg  Category = "general_agriculture"
	CategoryFundingInv Category = "funding_investment"
)

// AllCategories returns all defined categories, in prompt order.
func AllCategories() []Category {
	return []Category{
		CategoryCocoa,
		CategoryShea,
		CategoryCashew,
		CategoryCoffee,
		CategoryGeneralAg,
		CategoryFundingInv,
	}
}
