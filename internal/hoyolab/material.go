package hoyolab

// moduleTypeStreamCodes marks the redemption module in the guide payload
const moduleTypeStreamCodes = 7

// MaterialResponse is the channel guide material payload
type MaterialResponse struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    struct {
		Modules []Module `json:"modules"`
	} `json:"data"`
}

// Module is one section of the guide material
type Module struct {
	ModuleType    int            `json:"module_type"`
	ExchangeGroup *ExchangeGroup `json:"exchange_group"`
}

// ExchangeGroup carries the stream redemption codes
type ExchangeGroup struct {
	BonusesSummary struct {
		CodeCount int `json:"code_count"`
	} `json:"bonuses_summary"`
	Bonuses []Bonus `json:"bonuses"`
}

// Bonus is one redemption code entry
type Bonus struct {
	ExchangeCode string `json:"exchange_code"`
	OfflineAt    int64  `json:"offline_at"`
	Icon         string `json:"icon"`
}

// StreamCodes is the extracted redemption module content
type StreamCodes struct {
	// CodeCount is the total the feed claims will exist for this stream
	CodeCount int
	Bonuses   []Bonus
}

// ExtractStreamCodes finds the redemption module in a guide payload. A
// missing module or an empty bonus list is the normal nothing-found-yet
// outcome, reported as ok == false, never an error.
func ExtractStreamCodes(m *MaterialResponse) (*StreamCodes, bool) {
	if m == nil {
		return nil, false
	}
	var group *ExchangeGroup
	for _, module := range m.Data.Modules {
		if module.ModuleType != moduleTypeStreamCodes {
			continue
		}
		group = module.ExchangeGroup
	}
	if group == nil || len(group.Bonuses) == 0 {
		return nil, false
	}
	return &StreamCodes{
		CodeCount: group.BonusesSummary.CodeCount,
		Bonuses:   group.Bonuses,
	}, true
}
