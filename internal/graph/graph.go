// Package graph finds swap routes between collateral tokens. Each
// swappable market contributes one edge per direction, weighted by the
// negative log of the exchange rate estimated from a simulated swap, so
// the shortest path is the route with the best compound rate.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

var (
	// ErrNoRoute is returned when no path connects two tokens.
	ErrNoRoute = errors.New("graph: no route")
	// ErrArbitrage is returned when estimated rates form a cycle with a
	// compound rate above one.
	ErrArbitrage = errors.New("graph: negative cycle in rate graph")
)

// Estimator supplies markets, prices and swap estimates. Estimates must
// not change market state.
type Estimator interface {
	Markets() []*market.Market
	Price(token string) (model.Price, error)
	EstimateSwap(market, tokenIn string, amount num.Uint) (string, num.Uint, error)
}

// Options configure a Router.
type Options struct {
	// EstimationValue is the USD value swapped to estimate each edge.
	EstimationValue num.Uint
	// Decimals of the market unit the value is expressed in.
	Decimals uint8
	// CacheSize bounds the number of cached routes.
	CacheSize int
	// Concurrency bounds parallel edge estimation.
	Concurrency int
}

// Route is the best path found between two tokens.
type Route struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Markets []string        `json:"markets"`
	Tokens  []string        `json:"tokens"`
	Rate    decimal.Decimal `json:"rate"` // tokens of To per token of From
}

type edge struct {
	market string
	from   string
	to     string
	weight float64
}

// Router computes and caches best swap routes.
type Router struct {
	est   Estimator
	opts  Options
	cache *lru.Cache[string, Route]
	log   *slog.Logger

	mu    sync.Mutex
	edges []edge // nil until estimated
	gen   uint64 // bumped by Invalidate
}

// NewRouter returns a router over est.
func NewRouter(est Estimator, opts Options, logger *slog.Logger) (*Router, error) {
	if opts.EstimationValue.IsZero() {
		return nil, fmt.Errorf("%w: zero estimation value", model.ErrInvalidArgument)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, Route](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Router{est: est, opts: opts, cache: cache, log: logger}, nil
}

// Invalidate drops every cached route and edge estimate. Call it after
// prices or market balances change.
func (r *Router) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = nil
	r.gen++
	r.cache.Purge()
}

// BestRoute returns the path from one token to another with the best
// estimated compound rate.
func (r *Router) BestRoute(ctx context.Context, from, to string) (Route, error) {
	if from == to {
		return Route{}, fmt.Errorf("%w: %s to itself", model.ErrInvalidArgument, from)
	}
	key := from + "->" + to
	if route, ok := r.cache.Get(key); ok {
		return route, nil
	}
	edges, gen, err := r.estimate(ctx)
	if err != nil {
		return Route{}, err
	}
	route, err := shortest(edges, from, to)
	if err != nil {
		return Route{}, err
	}
	r.remember(key, route, gen)
	return route, nil
}

// remember caches route unless the edges it came from were invalidated
// since generation gen.
func (r *Router) remember(key string, route Route, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.cache.Add(key, route)
	return true
}

// estimate returns the current edges and the generation they belong to.
func (r *Router) estimate(ctx context.Context) ([]edge, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edges != nil {
		return r.edges, r.gen, nil
	}

	type job struct{ market, tokenIn string }
	var jobs []job
	for _, m := range r.est.Markets() {
		if !m.Meta.Swappable() || !m.Flags.Enabled {
			continue
		}
		jobs = append(jobs, job{m.Meta.MarketToken, m.Meta.LongToken}, job{m.Meta.MarketToken, m.Meta.ShortToken})
	}

	results := make([]*edge, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := r.estimateEdge(j.market, j.tokenIn)
			if err != nil {
				r.log.Debug("edge skipped", "market", j.market, "token_in", j.tokenIn, "err", err)
				return nil
			}
			results[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	edges := make([]edge, 0, len(results))
	for _, e := range results {
		if e != nil {
			edges = append(edges, *e)
		}
	}
	r.edges = edges
	return edges, r.gen, nil
}

// estimateEdge swaps EstimationValue worth of tokenIn and weights the edge
// by ln(in) - ln(out).
func (r *Router) estimateEdge(marketToken, tokenIn string) (*edge, error) {
	price, err := r.est.Price(tokenIn)
	if err != nil {
		return nil, err
	}
	amountIn, err := r.opts.EstimationValue.Div(price.Max)
	if err != nil {
		return nil, err
	}
	if amountIn.IsZero() {
		return nil, fmt.Errorf("%w: estimation value below one unit of %s", model.ErrEmptyAction, tokenIn)
	}
	tokenOut, amountOut, err := r.est.EstimateSwap(marketToken, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	unit := num.Pow10(r.opts.Decimals)
	lnIn, err := num.Ln(amountIn, unit)
	if err != nil {
		return nil, err
	}
	lnOut, err := num.Ln(amountOut, unit)
	if err != nil {
		return nil, err
	}
	w, _ := lnIn.Sub(lnOut).Float64() // inexact is fine for a weight
	return &edge{market: marketToken, from: tokenIn, to: tokenOut, weight: w}, nil
}

// shortest runs Bellman-Ford over the best edge between each token pair.
func shortest(edges []edge, from, to string) (Route, error) {
	ids := make(map[string]int64)
	var names []string
	id := func(token string) int64 {
		if v, ok := ids[token]; ok {
			return v
		}
		ids[token] = int64(len(names))
		names = append(names, token)
		return ids[token]
	}

	type pair struct{ from, to int64 }
	best := make(map[pair]edge)
	for _, e := range edges {
		k := pair{id(e.from), id(e.to)}
		if cur, ok := best[k]; !ok || e.weight < cur.weight || (e.weight == cur.weight && e.market < cur.market) {
			best[k] = e
		}
	}

	fromID, okFrom := ids[from]
	toID, okTo := ids[to]
	if !okFrom || !okTo {
		return Route{}, fmt.Errorf("%w: %s to %s", ErrNoRoute, from, to)
	}

	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	pairs := make([]pair, 0, len(best))
	for k := range best {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from != pairs[j].from {
			return pairs[i].from < pairs[j].from
		}
		return pairs[i].to < pairs[j].to
	})
	for _, k := range pairs {
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(k.from), simple.Node(k.to), best[k].weight))
	}

	sp, ok := path.BellmanFordFrom(g.Node(fromID), g)
	if !ok {
		return Route{}, fmt.Errorf("%w: from %s", ErrArbitrage, from)
	}
	nodes, weight := sp.To(toID)
	if len(nodes) < 2 || math.IsInf(weight, 1) {
		return Route{}, fmt.Errorf("%w: %s to %s", ErrNoRoute, from, to)
	}

	route := Route{From: from, To: to, Rate: decimal.NewFromFloat(math.Exp(-weight))}
	route.Tokens = append(route.Tokens, names[nodes[0].ID()])
	for i := 1; i < len(nodes); i++ {
		e := best[pair{nodes[i-1].ID(), nodes[i].ID()}]
		route.Markets = append(route.Markets, e.market)
		route.Tokens = append(route.Tokens, names[nodes[i].ID()])
	}
	return route, nil
}
