package models

// FlipStats holds aggregate coin-flip statistics for one user
type FlipStats struct {
	TotalFlips   int64
	TotalWins    int64
	TotalLosses  int64
	TotalWagered int64
	NetProfit    int64
	BiggestWin   int64
	BiggestLoss  int64
}

// WinRate returns the win percentage, or 0 when no flips were recorded
func (s *FlipStats) WinRate() float64 {
	if s.TotalFlips == 0 {
		return 0
	}
	return float64(s.TotalWins) / float64(s.TotalFlips) * 100
}

// ChallengeStats holds aggregate challenge statistics for one user
type ChallengeStats struct {
	TotalChallenges int64
	TotalWon        int64
	TotalLost       int64
	TotalCancelled  int64
	AmountWon       int64
	AmountLost      int64
}

// ScoreboardEntry is one row of the balance scoreboard
type ScoreboardEntry struct {
	Rank     int
	Username string
	Balance  int64
	FlipStats
}

// UserStats combines everything shown for a single user
type UserStats struct {
	Account    *Account
	Flips      *FlipStats
	Challenges *ChallengeStats
}
