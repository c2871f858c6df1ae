// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord_test

import (
	"context"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlrecord"
)

type RelationSuite struct {
	f *fixture

	address   *sqlrecord.BelongsTo[Person, Address]
	residents *sqlrecord.HasMany[Address, Person]
	tags      *sqlrecord.HasMany[Person, Tag]
}

var _ = Suite(&RelationSuite{})

func (s *RelationSuite) SetUpTest(c *C) {
	s.f = newFixture(c)
	var err error
	s.address, err = sqlrecord.NewBelongsTo("address", s.f.people, "address_id", s.f.addresses)
	c.Assert(err, IsNil)
	s.residents, err = sqlrecord.NewHasMany("residents", s.f.addresses, s.f.people, "address_id")
	c.Assert(err, IsNil)
	s.tags, err = sqlrecord.NewHasMany("tags", s.f.people, s.f.tags, "person_id", sqlrecord.Through(s.f.personTags, "tag_id"))
	c.Assert(err, IsNil)
}

func (s *RelationSuite) TearDownTest(c *C) {
	c.Check(s.f.db.Close(), IsNil)
}

func (s *RelationSuite) TestBelongsTo(c *C) {
	ctx := context.Background()
	madonna, err := s.f.people.Find(ctx, 1)
	c.Assert(err, IsNil)

	addr, err := s.address.Get(ctx, madonna)
	c.Assert(err, IsNil)
	c.Check(addr.Street, Equals, "Main Street")
	same, err := s.f.addresses.Find(ctx, 1)
	c.Assert(err, IsNil)
	c.Check(addr == same, Equals, true)

	cher, err := s.f.people.Find(ctx, 4)
	c.Assert(err, IsNil)
	addr, err = s.address.Get(ctx, cher)
	c.Assert(err, IsNil)
	c.Check(addr, IsNil)
}

func (s *RelationSuite) TestBelongsToSet(c *C) {
	ctx := context.Background()
	cher, err := s.f.people.Find(ctx, 4)
	c.Assert(err, IsNil)
	lowRoad, err := s.f.addresses.Find(ctx, 2)
	c.Assert(err, IsNil)

	c.Assert(s.address.Set(cher, lowRoad), IsNil)
	c.Assert(cher.AddressID, NotNil)
	c.Check(*cher.AddressID, Equals, int64(2))

	_, err = s.f.people.SaveRecord(ctx, cher)
	c.Assert(err, IsNil)
	reloaded, err := s.f.people.Find(ctx, 4)
	c.Assert(err, IsNil)
	addr, err := s.address.Get(ctx, reloaded)
	c.Assert(err, IsNil)
	c.Check(addr == lowRoad, Equals, true)

	c.Assert(s.address.Set(cher, nil), IsNil)
	c.Check(cher.AddressID, IsNil)
}

func (s *RelationSuite) TestHasMany(c *C) {
	ctx := context.Background()
	main, err := s.f.addresses.Find(ctx, 1)
	c.Assert(err, IsNil)

	q, err := s.residents.Get(main)
	c.Assert(err, IsNil)
	sql, args, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `p_people` WHERE (`address_id` = ?)")
	c.Check(args, DeepEquals, []any{int64(1)})

	people, err := q.Order("id").All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(people), DeepEquals, []string{"madonna", "prince"})
}

func (s *RelationSuite) TestHasManyThrough(c *C) {
	ctx := context.Background()
	madonna, err := s.f.people.Find(ctx, 1)
	c.Assert(err, IsNil)

	q, err := s.tags.Get(madonna)
	c.Assert(err, IsNil)
	sql, args, err := q.Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT `p_tags`.* FROM `p_tags` JOIN `p_person_tags` ON "+
		"(`p_person_tags`.`tag_id` = `p_tags`.`id` AND `p_person_tags`.`person_id` = ?)")
	c.Check(args, DeepEquals, []any{int64(1)})

	tags, err := q.Order("label").All(ctx)
	c.Assert(err, IsNil)
	c.Assert(tags, HasLen, 2)
	c.Check(tags[0].Label, Equals, "actor")
	c.Check(tags[1].Label, Equals, "singer")

	// The join argument comes before the predicate arguments.
	singer, err := q.Where(map[string]any{"label": "singer"}).One(ctx)
	c.Assert(err, IsNil)
	c.Check(singer == tags[1], Equals, true)

	members, err := sqlrecord.NewHasMany("members", s.f.tags, s.f.people, "tag_id", sqlrecord.Through(s.f.personTags, "person_id"))
	c.Assert(err, IsNil)
	q2, err := members.Get(tags[1])
	c.Assert(err, IsNil)
	singers, err := q2.Order("`p_people`.`id`").All(ctx)
	c.Assert(err, IsNil)
	c.Check(names(singers), DeepEquals, []string{"madonna", "prince", "cher"})
}

func (s *RelationSuite) TestNamedLookup(c *C) {
	ctx := context.Background()
	madonna, err := s.f.people.Find(ctx, 1)
	c.Assert(err, IsNil)

	v, err := s.f.people.Related(ctx, madonna, "address")
	c.Assert(err, IsNil)
	c.Check(v.(*Address).Street, Equals, "Main Street")

	v, err = s.f.people.Related(ctx, madonna, "tags")
	c.Assert(err, IsNil)
	n, err := v.(*sqlrecord.Query[Tag]).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	_, err = s.f.people.Related(ctx, madonna, "friends")
	c.Check(err, ErrorMatches, `relation "friends" of model "Person": not defined`)
	c.Check(sqlrecord.IsRelationConfig(err), Equals, true)
}

func (s *RelationSuite) TestConfigErrors(c *C) {
	_, err := sqlrecord.NewBelongsTo("pivot", s.f.people, "id", s.f.personTags)
	c.Check(err, ErrorMatches, `relation "pivot" of model "Person": associate model "PersonTag" has no concrete record type`)
	c.Check(sqlrecord.IsRelationConfig(err), Equals, true)

	_, err = sqlrecord.NewBelongsTo("planet", s.f.people, "planet_id", s.f.addresses)
	c.Check(err, ErrorMatches, `relation "planet" of model "Person": unknown foreign key column "planet_id"`)

	_, err = sqlrecord.NewBelongsTo("address", s.f.people, "address_id", s.f.addresses)
	c.Check(err, ErrorMatches, `relation "address" of model "Person": already defined`)

	_, err = sqlrecord.NewHasMany("people", s.f.personTags, s.f.people, "id")
	c.Check(err, ErrorMatches, `relation "people" of model "PersonTag": owner has a composite primary key, a local key is required`)

	_, err = sqlrecord.NewHasMany("others", s.f.addresses, s.f.people, "street_id")
	c.Check(err, ErrorMatches, `relation "others" of model "Address": unknown foreign key column "street_id"`)

	_, err = sqlrecord.NewHasMany("bad", s.f.people, s.f.tags, "person_id", sqlrecord.Through(s.f.personTags, "label_id"))
	c.Check(err, ErrorMatches, `relation "bad" of model "Person": pivot "PersonTag" has no column "label_id"`)

	_, err = sqlrecord.NewHasMany("local", s.f.addresses, s.f.people, "address_id", sqlrecord.LocalKey("zip"))
	c.Check(err, ErrorMatches, `relation "local" of model "Address": unknown local key column "zip"`)
}
