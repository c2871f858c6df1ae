// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord_test

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlrecord"
	"github.com/canonical/sqlrecord/conn"
	"github.com/canonical/sqlrecord/dialect"
)

// MySQLSuite checks the statements sent to a MySQL server without one.
type MySQLSuite struct {
	mock   sqlmock.Sqlmock
	logs   *bytes.Buffer
	reg    *sqlrecord.Registry
	people *sqlrecord.Model[Person]
}

var _ = Suite(&MySQLSuite{})

func (s *MySQLSuite) SetUpTest(c *C) {
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	c.Assert(err, IsNil)
	s.mock = mock
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.reg = sqlrecord.NewRegistry(conn.New(sqldb, dialect.NewMySQL()), sqlrecord.WithLogger(logger))
	s.people, err = sqlrecord.NewModel[Person](s.reg, "Person", personSchema(c))
	c.Assert(err, IsNil)
}

func (s *MySQLSuite) TearDownTest(c *C) {
	c.Check(s.mock.ExpectationsWereMet(), IsNil)
}

func (s *MySQLSuite) expectFind(id int64) {
	s.mock.ExpectPrepare("SELECT * FROM `people` WHERE (`id` IN (?))").
		ExpectQuery().WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "born", "address_id", "created_at"}).
			AddRow(id, "madonna", int64(1958), nil, "2024-01-01 00:00:00"))
}

func (s *MySQLSuite) TestInstall(c *C) {
	stmts, err := s.reg.DDL()
	c.Assert(err, IsNil)
	c.Assert(stmts, HasLen, 2)
	c.Check(stmts[0], Equals, "CREATE TABLE `people` ("+
		"`id` INTEGER(4) UNSIGNED NOT NULL AUTO_INCREMENT UNIQUE, "+
		"`name` VARCHAR(255) NOT NULL, "+
		"`born` INTEGER(4) NOT NULL DEFAULT 0, "+
		"`address_id` INTEGER(4) UNSIGNED NULL, "+
		"`created_at` TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP), "+
		"PRIMARY KEY (`id`)) COLLATE utf8_general_ci;")
	for _, stmt := range stmts {
		s.mock.ExpectPrepare(stmt).ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	}

	c.Assert(s.reg.Install(context.Background()), IsNil)
	c.Check(s.logs.String(), Matches, `(?s).*level=INFO msg="installed models" models=1 statements=2.*`)
}

func (s *MySQLSuite) TestSaveWithKeyUpdates(c *C) {
	s.mock.ExpectPrepare("UPDATE `people` SET `name` = ? WHERE `id` IN (?)").
		ExpectExec().WithArgs("Madonna", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := s.people.Save(context.Background(), map[string]any{"name": "Madonna"}, 7)
	c.Assert(err, IsNil)
	c.Check(key, Equals, 7)
	c.Check(s.logs.String(), Matches, `(?s).*msg="evicted record" model=Person key=7.*`)
}

func (s *MySQLSuite) TestSaveWithKeyInsertsMissingRecord(c *C) {
	s.mock.ExpectPrepare("UPDATE `people` SET `name` = ? WHERE `id` IN (?)").
		ExpectExec().WithArgs("Madonna", 7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectPrepare("SELECT 1 FROM `people` WHERE (`id` IN (?)) LIMIT 1").
		ExpectQuery().WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	s.mock.ExpectPrepare("INSERT INTO `people` (`id`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)").
		ExpectExec().WithArgs(7, "Madonna").
		WillReturnResult(sqlmock.NewResult(7, 1))

	key, err := s.people.Save(context.Background(), map[string]any{"name": "Madonna"}, 7)
	c.Assert(err, IsNil)
	c.Check(key, Equals, 7)
}

func (s *MySQLSuite) TestSaveWithKeyUnchangedRecord(c *C) {
	// MySQL reports no affected rows when an UPDATE changes nothing.
	s.mock.ExpectPrepare("UPDATE `people` SET `born` = ? WHERE `id` IN (?)").
		ExpectExec().WithArgs(1958, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectPrepare("SELECT 1 FROM `people` WHERE (`id` IN (?)) LIMIT 1").
		ExpectQuery().WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	key, err := s.people.Save(context.Background(), map[string]any{"born": 1958}, 7)
	c.Assert(err, IsNil)
	c.Check(key, Equals, 7)
}

func (s *MySQLSuite) TestFindCachesAcrossCalls(c *C) {
	s.expectFind(7)
	ctx := context.Background()
	a, err := s.people.Find(ctx, 7)
	c.Assert(err, IsNil)
	c.Check(a.Name, Equals, "madonna")
	// No statement is expected for the second lookup.
	b, err := s.people.Find(ctx, 7)
	c.Assert(err, IsNil)
	c.Check(a == b, Equals, true)
}

func (s *MySQLSuite) TestDeleteEvictsOnFailure(c *C) {
	s.expectFind(7)
	driverErr := &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"}
	s.mock.ExpectPrepare("DELETE FROM `people` WHERE `id` IN (?)").
		ExpectExec().WithArgs(7).
		WillReturnError(driverErr)

	ctx := context.Background()
	_, err := s.people.Find(ctx, 7)
	c.Assert(err, IsNil)

	err = s.people.Delete(ctx, 7)
	c.Check(sqlrecord.IsStatementInvalid(err), Equals, true)
	c.Check(conn.ErrorCode(err), Equals, 1451)
	_, ok := s.people.Cache().Retrieve(7)
	c.Check(ok, Equals, false)
}

func (s *MySQLSuite) TestCountReadsTextResult(c *C) {
	s.mock.ExpectPrepare("SELECT COUNT(*) AS total FROM `people` WHERE (`born` = ?)").
		ExpectQuery().WithArgs(1958).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow([]byte("2")))

	n, err := s.people.Where(map[string]any{"born": 1958}).Count(context.Background())
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))
}

func (s *MySQLSuite) TestCountSelectList(c *C) {
	s.mock.ExpectPrepare("SELECT COUNT(*) AS total FROM (SELECT DISTINCT born FROM `people`) AS counted").
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow([]byte("3")))

	n, err := s.people.Query().Select("DISTINCT born").Order("born").Limit(2).Count(context.Background())
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))
}

func (s *MySQLSuite) TestRendering(c *C) {
	sql, _, err := s.people.Query().Offset(5).Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `people` LIMIT 5, 18446744073709551615")

	sql, _, err = s.people.Query().Order("name", "prince", "cher").Render()
	c.Assert(err, IsNil)
	c.Check(sql, Equals, "SELECT * FROM `people` ORDER BY FIELD(`name`, 'prince', 'cher')")
}
