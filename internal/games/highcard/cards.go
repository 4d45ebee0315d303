package highcard

import (
	"errors"
	"strings"

	"roundtable/internal/game/random"
)

type Suit int

type Rank int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

var ErrInvalidCard = errors.New("invalid_card")

const rankChars = "23456789TJQKA"

const suitChars = "shdc"

type Card struct {
	Rank Rank
	Suit Suit
}

func (c Card) String() string {
	return string(rankChars[c.Rank-Two]) + string(suitChars[c.Suit])
}

func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, ErrInvalidCard
	}
	r := strings.IndexByte(rankChars, strings.ToUpper(s[:1])[0])
	su := strings.IndexByte(suitChars, strings.ToLower(s[1:])[0])
	if r < 0 || su < 0 {
		return Card{}, ErrInvalidCard
	}
	return Card{Rank: Two + Rank(r), Suit: Suit(su)}, nil
}

func NewDeck() []Card {
	cards := make([]Card, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Two; r <= Ace; r++ {
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	return cards
}

// Deal shuffles a fresh deck and hands out size cards to each player in order.
func Deal(rng *random.Generator, players []string, size int) map[string][]string {
	deck := random.Shuffle(rng, NewDeck())
	hands := make(map[string][]string, len(players))
	for i := 0; i < size; i++ {
		for _, p := range players {
			hands[p] = append(hands[p], deck[0].String())
			deck = deck[1:]
		}
	}
	return hands
}
