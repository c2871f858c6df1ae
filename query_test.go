// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord_test

import (
	"context"
	"fmt"
	"sync"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlrecord"
)

type QuerySuite struct {
	f *fixture
}

var _ = Suite(&QuerySuite{})

func (s *QuerySuite) SetUpTest(c *C) {
	s.f = newFixture(c)
}

func (s *QuerySuite) TearDownTest(c *C) {
	c.Check(s.f.db.Close(), IsNil)
}

func names(people []*Person) []string {
	var ns []string
	for _, p := range people {
		ns = append(ns, p.Name)
	}
	return ns
}

func (s *QuerySuite) TestWhereAndRendering(c *C) {
	q := s.f.people.Where(map[string]any{"name": "madonna"}).And("YEAR(date) = ?", 1958)
	sql, args, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `p_people` WHERE (`name` = ?) AND (YEAR(date) = ?)")
	c.Check(args, DeepEquals, []any{"madonna", 1958})
	c.Check(q.String(), Equals, sql)
}

func (s *QuerySuite) TestFullRendering(c *C) {
	q := s.f.people.Query().
		Select("p.born, COUNT(*) AS n").
		As("p").
		Join("JOIN `p_addresses` a ON (a.id = p.address_id AND a.street <> ?)", "Nowhere").
		Where("p.born > ?", 1900).
		Group("p.born").
		Order("n DESC").
		Limit(5, 10)
	sql, args, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT p.born, COUNT(*) AS n FROM `p_people` p "+
		"JOIN `p_addresses` a ON (a.id = p.address_id AND a.street <> ?) "+
		"WHERE (p.born > ?) GROUP BY p.born ORDER BY n DESC LIMIT 10, 5")
	c.Check(args, DeepEquals, []any{"Nowhere", 1900})
}

func (s *QuerySuite) TestBranchesAreIndependent(c *C) {
	base := s.f.people.Where("born > ?", 1950)
	baseSQL, _, err := base.Render()
	c.Assert(err, IsNil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sql, _, _ := base.And("id = ?", i).Order("id").Render()
			results[i] = sql
		}(i)
	}
	wg.Wait()
	for _, sql := range results {
		c.Check(sql, Equals, "SELECT * FROM `p_people` WHERE (born > ?) AND (id = ?) ORDER BY id")
	}

	after, args, err := base.Render()
	c.Assert(err, IsNil)
	c.Check(after, Equals, baseSQL)
	c.Check(args, DeepEquals, []any{1950})

	ctx := context.Background()
	old, err := base.Order("born, id").All(ctx)
	c.Assert(err, IsNil)
	young, err := base.And("born > ?", 1960).All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(old), DeepEquals, []string{"madonna", "prince", "bjork"})
	c.Check(names(young), DeepEquals, []string{"bjork"})
}

func (s *QuerySuite) TestBuildErrors(c *C) {
	ctx := context.Background()
	tests := []struct {
		summary string
		query   *sqlrecord.Query[Person]
		err     string
	}{{
		summary: "unsupported condition",
		query:   s.f.people.Where(42),
		err:     `unsupported condition type int`,
	}, {
		summary: "missing argument",
		query:   s.f.people.Where("born = ? AND name = ?", 1958),
		err:     `fragment "born = \? AND name = \?" has 2 placeholders but 1 arguments`,
	}, {
		summary: "map with arguments",
		query:   s.f.people.Where(map[string]any{"born": 1958}, 1),
		err:     `map condition takes no arguments, got 1`,
	}, {
		summary: "empty map",
		query:   s.f.people.Where(map[string]any{}),
		err:     `no conditions given`,
	}, {
		summary: "negative limit",
		query:   s.f.people.Query().Limit(-1),
		err:     `negative limit -1`,
	}, {
		summary: "first error wins",
		query:   s.f.people.Query().Offset(-2).Join("JOIN x ON x.id = ?"),
		err:     `negative offset -2`,
	}}
	for i, test := range tests {
		comment := Commentf("test %d failed: %s", i, test.summary)
		_, _, err := test.query.Render()
		c.Check(err, ErrorMatches, test.err, comment)
		_, err = test.query.All(ctx)
		c.Check(err, ErrorMatches, test.err, comment)
		_, err = test.query.One(ctx)
		c.Check(err, ErrorMatches, test.err, comment)
		_, err = test.query.Count(ctx)
		c.Check(err, ErrorMatches, test.err, comment)
		_, err = test.query.Exists(ctx)
		c.Check(err, ErrorMatches, test.err, comment)
		_, err = test.query.Pairs(ctx, "id", "name")
		c.Check(err, ErrorMatches, test.err, comment)
	}
}

func (s *QuerySuite) TestWhereMapForms(c *C) {
	ctx := context.Background()
	homeless, err := s.f.people.Where(sqlrecord.M{"address_id": nil}).All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(homeless), DeepEquals, []string{"cher"})

	some, err := s.f.people.Where(map[string]any{"name": []string{"madonna", "cher"}}).Order("name").All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(some), DeepEquals, []string{"cher", "madonna"})

	none, err := s.f.people.Where(map[string]any{"name": []string{}}).All(ctx)
	c.Assert(err, IsNil)
	c.Check(none, HasLen, 0)
}

func (s *QuerySuite) TestOrderExplicit(c *C) {
	q := s.f.people.Query().Order("name", "prince", "cher", "madonna")
	sql, _, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `p_people` ORDER BY CASE `name` WHEN 'prince' THEN 0 WHEN 'cher' THEN 1 WHEN 'madonna' THEN 2 ELSE 3 END")

	people, err := q.All(context.Background())
	c.Assert(err, IsNil)
	c.Check(names(people), DeepEquals, []string{"prince", "cher", "madonna", "bjork"})
}

func (s *QuerySuite) TestLimitAndOffset(c *C) {
	ctx := context.Background()
	page, err := s.f.people.Query().Order("id").Limit(2, 1).All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(page), DeepEquals, []string{"prince", "bjork"})

	q := s.f.people.Query().Order("id").Offset(3)
	sql, _, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `p_people` ORDER BY id LIMIT 3, -1")
	rest, err := q.All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(rest), DeepEquals, []string{"cher"})
}

func (s *QuerySuite) TestOne(c *C) {
	ctx := context.Background()
	p, err := s.f.people.Where(map[string]any{"born": 1958}).Order("id DESC").One(ctx)
	c.Assert(err, IsNil)
	c.Check(p.Name, Equals, "prince")

	cached, err := s.f.people.Find(ctx, 2)
	c.Assert(err, IsNil)
	c.Check(cached == p, Equals, true)

	p, err = s.f.people.Where(map[string]any{"born": 1900}).One(ctx)
	c.Assert(err, IsNil)
	c.Check(p, IsNil)
}

func (s *QuerySuite) TestCount(c *C) {
	ctx := context.Background()
	n, err := s.f.people.Query().Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(4))

	n, err = s.f.people.Where(map[string]any{"born": 1958}).Order("name").Limit(1).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	n, err = s.f.people.Query().Select("born").Group("born").Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))

	n, err = s.f.people.Query().Select("DISTINCT born").Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))

	n, err = s.f.people.Query().Select("DISTINCT address_id").Where("address_id IS NOT NULL").Limit(1).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))
}

func (s *QuerySuite) TestExists(c *C) {
	ctx := context.Background()
	ok, err := s.f.people.Where("born < ?", 1950).Exists(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, true)

	ok, err = s.f.people.Where("born < ?", 1900).Exists(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, false)
}

func (s *QuerySuite) TestPairs(c *C) {
	ctx := context.Background()
	pairs, err := s.f.people.Query().Order("id").Pairs(ctx, "id", "name")
	c.Assert(err, IsNil)
	c.Check(pairs.Len(), Equals, 4)
	c.Check(pairs.Keys(), DeepEquals, []any{int64(1), int64(2), int64(3), int64(4)})
	name, ok := pairs.Get(1)
	c.Assert(ok, Equals, true)
	c.Check(fmt.Sprintf("%s", name), Equals, "madonna")

	pairs, err = s.f.people.Query().As("p").Where("p.born = ?", 1958).Pairs(ctx, "p.name", "p.id")
	c.Assert(err, IsNil)
	c.Check(pairs.Len(), Equals, 2)
	id, ok := pairs.Get("prince")
	c.Assert(ok, Equals, true)
	c.Check(id, Equals, int64(2))
}

func (s *QuerySuite) TestScopes(c *C) {
	ctx := context.Background()
	c.Assert(s.f.people.DefineScope("born_in", func(q *sqlrecord.Query[Person], args ...any) *sqlrecord.Query[Person] {
		return q.Where(map[string]any{"born": args[0]})
	}), IsNil)
	c.Assert(s.f.people.DefineScope("neighbours", func(q *sqlrecord.Query[Person], args ...any) *sqlrecord.Query[Person] {
		p := args[0].(*Person)
		return q.Where(map[string]any{"address_id": *p.AddressID}).And("id <> ?", p.ID)
	}), IsNil)

	q, err := s.f.people.Scope("born_in", 1958)
	c.Assert(err, IsNil)
	n, err := q.Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	// Scopes compose with the rest of the builder.
	people, err := s.f.people.Where("name LIKE ?", "m%").Scope("born_in", 1958).All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(people), DeepEquals, []string{"madonna"})

	madonna, err := s.f.people.Find(ctx, 1)
	c.Assert(err, IsNil)
	q, err = s.f.people.ScopeFor(madonna, "neighbours")
	c.Assert(err, IsNil)
	people, err = q.All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(people), DeepEquals, []string{"prince"})

	c.Check(s.f.people.DefineScope("born_in", nil), ErrorMatches, `cannot define scope on model "Person": empty name or nil function`)
	c.Check(s.f.people.DefineScope("born_in", func(q *sqlrecord.Query[Person], _ ...any) *sqlrecord.Query[Person] { return q }),
		ErrorMatches, `scope "born_in" already defined on model "Person"`)
}

func (s *QuerySuite) TestScopeNotDefined(c *C) {
	_, err := s.f.people.Scope("famous")
	c.Check(err, ErrorMatches, `scope "famous" not defined on model "Person"`)
	c.Check(sqlrecord.IsScopeNotDefined(err), Equals, true)

	_, err = s.f.people.Query().Scope("famous").All(context.Background())
	c.Check(sqlrecord.IsScopeNotDefined(err), Equals, true)
}
