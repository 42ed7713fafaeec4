package game

// Game identifies one of the supported live-service titles
type Game string

const (
	GameGenshin  Game = "genshin"
	GameStarRail Game = "starrail"
	GameZZZ      Game = "zzz"
)

// All returns the supported games in a stable order
func All() []Game {
	return []Game{GameGenshin, GameStarRail, GameZZZ}
}

// Valid reports whether g is a known game identifier
func (g Game) Valid() bool {
	switch g {
	case GameGenshin, GameStarRail, GameZZZ:
		return true
	}
	return false
}

// Name returns the human-readable title
func (g Game) Name() string {
	switch g {
	case GameGenshin:
		return "Genshin Impact"
	case GameStarRail:
		return "Honkai: Star Rail"
	case GameZZZ:
		return "Zenless Zone Zero"
	}
	return string(g)
}

// HoyolabID returns the community API game id used by the official feed
func (g Game) HoyolabID() int {
	switch g {
	case GameGenshin:
		return 2
	case GameStarRail:
		return 6
	case GameZZZ:
		return 8
	}
	return 0
}

// WikiURL returns the community wiki page listing redemption codes.
// An empty string means the game has no wiki feed.
func (g Game) WikiURL() string {
	switch g {
	case GameGenshin:
		return "https://genshin-impact.fandom.com/wiki/Promotional_Code"
	case GameStarRail:
		return "https://honkai-star-rail.fandom.com/wiki/Redemption_Code"
	case GameZZZ:
		return "https://zenless-zone-zero.fandom.com/wiki/Redemption_Code"
	}
	return ""
}

// RedeemURL returns the official redemption page prefix; appending a code
// string yields a direct redeem link.
func (g Game) RedeemURL() string {
	switch g {
	case GameGenshin:
		return "https://genshin.hoyoverse.com/en/gift?code="
	case GameStarRail:
		return "https://hsr.hoyoverse.com/gift?code="
	case GameZZZ:
		return "https://zenless.hoyoverse.com/redemption?code="
	}
	return ""
}
