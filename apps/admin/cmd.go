package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/shule/core/grade"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sqlx.DB
	gradeSvc *grade.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args]                       - run database migrations (goose commands)")
	fmt.Println("  approve -course ID -admin ID                 - approve a course's pending grades and refresh GPAs")
	fmt.Println("  reject -course ID -admin ID -reason REASON   - reject a course's pending grades")
	fmt.Println("  recompute -course ID                         - recompute a course's total scores")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	approveCmd := flag.NewFlagSet("approve", flag.ExitOnError)
	approveCourse := approveCmd.String("course", "", "The course id.")
	approveAdmin := approveCmd.String("admin", "", "The approving admin's id.")

	rejectCmd := flag.NewFlagSet("reject", flag.ExitOnError)
	rejectCourse := rejectCmd.String("course", "", "The course id.")
	rejectAdmin := rejectCmd.String("admin", "", "The rejecting admin's id.")
	rejectReason := rejectCmd.String("reason", "", "The rejection reason, sent to the instructor.")

	recomputeCmd := flag.NewFlagSet("recompute", flag.ExitOnError)
	recomputeCourse := recomputeCmd.String("course", "", "The course id.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveCourse == "" || *approveAdmin == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveCourse, *approveAdmin)

	case "reject":
		if err := rejectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rejectCourse == "" || *rejectAdmin == "" || *rejectReason == "" {
			rejectCmd.Usage()
			return errHelp
		}
		return cli.reject(*rejectCourse, *rejectAdmin, *rejectReason)

	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recomputeCourse == "" {
			recomputeCmd.Usage()
			return errHelp
		}
		return cli.recompute(*recomputeCourse)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) approve(courseID, adminID string) error {
	res, err := cli.gradeSvc.ApproveGrades(context.Background(), courseID, adminID)
	if err != nil {
		return err
	}
	fmt.Printf("approved %d grade record(s); GPA refreshed for %d student(s)\n", res.UpdatedCount, len(res.GPARecomputedFor))
	return nil
}

func (cli *commandLine) reject(courseID, adminID, reason string) error {
	count, err := cli.gradeSvc.RejectGrades(context.Background(), courseID, adminID, reason)
	if err != nil {
		return err
	}
	fmt.Printf("rejected %d grade record(s)\n", count)
	return nil
}

func (cli *commandLine) recompute(courseID string) error {
	if err := cli.gradeSvc.Recompute(context.Background(), courseID); err != nil {
		return err
	}
	fmt.Println("total scores recomputed")
	return nil
}
