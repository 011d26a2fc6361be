package httpapi

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"prodtrack/internal/domain"
	"prodtrack/internal/production"
	"prodtrack/internal/report"

	"github.com/gofiber/fiber/v2"
)

type recordRequest struct {
	LineID int64  `json:"line_id"`
	Date   string `json:"date"`
	Shift  string `json:"shift"`
}

func (r recordRequest) input() (production.RecordInput, error) {
	var errs []error
	in := production.RecordInput{LineID: r.LineID}
	date, err := domain.ParseDate(strings.TrimSpace(r.Date))
	if err != nil {
		errs = append(errs, err)
	}
	in.Date = date
	shift, err := domain.ParseShift(r.Shift)
	if err != nil {
		errs = append(errs, err)
	}
	in.Shift = shift
	return in, errors.Join(errs...)
}

type userRequest struct {
	Username  string `json:"username"`
	Superuser bool   `json:"superuser"`
}

// parseBody decodes a JSON body. Field-level decode failures (a malformed
// time of day) keep their validation error.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (s *Server) listLines(c *fiber.Ctx) error {
	lines, err := s.svc.ListLines(c.UserContext(), actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(lines)
}

func (s *Server) createLine(c *fiber.Ctx) error {
	var line domain.ProductionLine
	if err := parseBody(c, &line); err != nil {
		return err
	}
	created, err := s.svc.CreateLine(c.UserContext(), actorOf(c), line)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) getLine(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	line, err := s.svc.GetLine(c.UserContext(), actorOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(line)
}

func (s *Server) updateLine(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var line domain.ProductionLine
	if err := parseBody(c, &line); err != nil {
		return err
	}
	line.ID = id
	updated, err := s.svc.UpdateLine(c.UserContext(), actorOf(c), line)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (s *Server) deleteLine(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.DeleteLine(c.UserContext(), actorOf(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listRecords(c *fiber.Ctx) error {
	var q production.RecordQuery
	var errs []error
	if v := c.Query("line_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, domain.Invalid("line_id", "not a number: %q", v))
		}
		q.LineID = id
	}
	if v := c.Query("from"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			errs = append(errs, domain.Invalid("from", "expected YYYY-MM-DD, got %q", v))
		}
		q.From = d
	}
	if v := c.Query("to"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			errs = append(errs, domain.Invalid("to", "expected YYYY-MM-DD, got %q", v))
		}
		q.To = d
	}
	switch state := c.Query("state"); domain.RecordState(state) {
	case "":
	case domain.StateOpen:
		q.Finalized = new(bool)
	case domain.StateFinalized:
		finalized := true
		q.Finalized = &finalized
	default:
		errs = append(errs, domain.Invalid("state", "expected open or finalized, got %q", state))
	}
	q.Limit = c.QueryInt("limit", 0)
	q.Offset = c.QueryInt("offset", 0)
	if q.Limit < 0 || q.Offset < 0 {
		errs = append(errs, domain.Invalid("limit", "limit and offset must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	records, err := s.svc.ListRecords(c.UserContext(), actorOf(c), q)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.ProductionRecord{}
	}
	return c.JSON(records)
}

func (s *Server) createRecord(c *fiber.Ctx) error {
	var req recordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	rec, err := s.svc.CreateRecord(c.UserContext(), actorOf(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) getRecord(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.svc.GetRecord(c.UserContext(), actorOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

func (s *Server) updateRecord(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req recordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	rec, err := s.svc.UpdateRecord(c.UserContext(), actorOf(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) deleteRecord(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.DeleteRecord(c.UserContext(), actorOf(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) recompute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	// Recompute itself is actor-free; the lookup enforces sector access.
	if _, err := s.svc.GetRecord(c.UserContext(), actorOf(c), id); err != nil {
		return err
	}
	totals, err := s.svc.RecomputeTotals(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(totals)
}

func (s *Server) finalize(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	rec, err := s.svc.Finalize(c.UserContext(), id, actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) reopen(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	rec, err := s.svc.Reopen(c.UserContext(), id, actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) saveChildren(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var batch production.ChildBatch
	if err := parseBody(c, &batch); err != nil {
		return err
	}
	res, err := s.svc.SaveChildren(c.UserContext(), id, batch, actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) deleteHourly(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	entryID, err := paramID(c, "entryID")
	if err != nil {
		return err
	}
	rec, err := s.svc.DeleteHourlyEntry(c.UserContext(), id, entryID, actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) deleteStoppage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	stoppageID, err := paramID(c, "stoppageID")
	if err != nil {
		return err
	}
	rec, err := s.svc.DeleteStoppage(c.UserContext(), id, stoppageID, actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) createUser(c *fiber.Ctx) error {
	var req userRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := s.svc.CreateUser(c.UserContext(), actorOf(c), req.Username, req.Superuser)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func sectorParam(c *fiber.Ctx) (string, error) {
	sector, err := url.PathUnescape(c.Params("sector"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid sector")
	}
	return sector, nil
}

func (s *Server) grantSector(c *fiber.Ctx) error {
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	sector, err := sectorParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.GrantSector(c.UserContext(), actorOf(c), userID, sector); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) revokeSector(c *fiber.Ctx) error {
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	sector, err := sectorParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.RevokeSector(c.UserContext(), actorOf(c), userID, sector); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// dailyReport serves the summary for ?date=YYYY-MM-DD, limited to the
// caller's sectors. format=markdown returns the rendered report instead of
// JSON.
func (s *Server) dailyReport(c *fiber.Ctx) error {
	raw := c.Query("date")
	if raw == "" {
		return domain.Invalid("date", "required")
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return err
	}
	daily, err := report.BuildDaily(c.UserContext(), s.svc.DB(), date, report.Options{
		OpenRecordMaxAgeDays: s.opts.OpenRecordMaxAgeDays,
		Sectors:              production.VisibleSectors(actorOf(c)),
	})
	if err != nil {
		return err
	}
	if c.Query("format") == "markdown" {
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(report.RenderMarkdown(daily, c.Query("title", "Producao")))
	}
	return c.JSON(daily)
}
