package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/classify"
	"github.com/cna-research/geoharvest/internal/status"
)

// navStrategy is one way of reaching the next listing page. The strategies
// form an ordered cascade: each is tried in turn until one succeeds, spending
// increasing effort (script hook, link navigation, simulated click, reload,
// full session restart) before the run gives up.
type navStrategy struct {
	name string
	run  func(ctx context.Context, target int, markup string) error
}

func (c *Controller) strategies() []navStrategy {
	return []navStrategy{
		{
			name: "page_jump",
			run: func(ctx context.Context, target int, _ string) error {
				return c.session.GoPage(ctx, target)
			},
		},
		{
			name: "next_link_nav",
			run: func(ctx context.Context, _ int, markup string) error {
				href, ok := classify.NextHref(markup, c.cfg.BaseURL+c.cfg.DisplayPath)
				if !ok {
					return fmt.Errorf("next control has no navigable href")
				}
				return c.session.Navigate(ctx, href)
			},
		},
		{
			name: "next_link_click",
			run: func(ctx context.Context, _ int, _ string) error {
				return c.session.ClickNext(ctx)
			},
		},
		{
			name: "reload_page_jump",
			run: func(ctx context.Context, target int, _ string) error {
				if err := c.session.Reload(ctx); err != nil {
					return fmt.Errorf("reload: %w", err)
				}
				return c.session.GoPage(ctx, target)
			},
		},
		{
			name: "session_restart",
			run: func(ctx context.Context, target int, _ string) error {
				if err := c.session.Restart(ctx); err != nil {
					return fmt.Errorf("restart session: %w", err)
				}
				return c.session.GoPage(ctx, target)
			},
		},
	}
}

// advance moves the session from page to page+1 through the fallback
// cascade. markup is the already-fetched content of the current page, used
// to resolve the next control's href. Exhausting every strategy is the only
// way a mid-run navigation failure aborts the run.
func (c *Controller) advance(ctx context.Context, page int, markup string) error {
	target := page + 1
	for _, strat := range c.strategies() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := strat.run(ctx, target, markup)
		if err == nil {
			return nil
		}
		c.logger.Warn("navigation strategy failed",
			zap.String("strategy", strat.name),
			zap.Int("target_page", target),
			zap.Error(err))
		c.emit(status.Event{
			Stage:    status.StageNavFallback,
			Page:     target,
			Strategy: strat.name,
			Note:     err.Error(),
		})
	}
	return fmt.Errorf("cannot navigate to page %d, all strategies exhausted", target)
}
