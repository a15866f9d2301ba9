package extract

// #region stopwords
// stopwords contains common English words excluded from the learned
// vocabulary. Extraction keeps content words only; the detector tokenizes
// without this filter since stop words never enter the keyword table.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true, "tell": true, "please": true,
}

// #endregion stopwords
